package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/aisuite/internal/adapters/exchange"
	"github.com/PabloGalante/aisuite/internal/app/chatsession"
)

var sendSessionID string

// sendCmd runs one exchange without the UI.
var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a single message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent chat sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var modelInfoCmd = &cobra.Command{
	Use:   "model-info",
	Short: "Show the model serving replies",
	Args:  cobra.NoArgs,
	RunE:  runModelInfo,
}

func init() {
	sendCmd.Flags().StringVar(&sendSessionID, "session", "", "continue an existing session")
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), cfg.ExchangeTimeout)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	client := exchange.NewClient(cfg.APIURL)
	resp, err := client.Exchange(ctx, chatsession.ExchangeRequest{
		Message:   strings.Join(args, " "),
		SessionID: sendSessionID,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Response)
	fmt.Fprintf(out, "\nsession: %s  intent: %s  confidence: %.2f\n", resp.SessionID, resp.Intent, resp.Confidence)
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := exchange.NewClient(cfg.APIURL).ListSessions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resp.Count == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %5s  %-16s  %s\n", "SESSION", "MSGS", "UPDATED", "LAST MESSAGE")
	for _, s := range resp.Sessions {
		last := ""
		if s.LastMessage != nil {
			last = *s.LastMessage
		}
		fmt.Fprintf(out, "%-36s  %5d  %-16s  %s\n",
			s.SessionID, s.MessageCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"), last)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := exchange.NewClient(cfg.APIURL).History(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, m := range resp.Messages {
		fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.Role, m.Content)
	}
	fmt.Fprintf(out, "\n%d messages\n", resp.MessageCount)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	if err := exchange.NewClient(cfg.APIURL).DeleteSession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s deleted\n", args[0])
	return nil
}

func runModelInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	info, err := exchange.NewClient(cfg.APIURL).ModelInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "model: %s  loaded: %t\n", info.ModelName, info.IsLoaded)
	return nil
}
