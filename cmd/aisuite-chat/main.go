// Command aisuite-chat is the terminal client of the AI chat API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/aisuite/internal/adapters/exchange"
	"github.com/PabloGalante/aisuite/internal/app/chatsession"
	"github.com/PabloGalante/aisuite/internal/config"
	"github.com/PabloGalante/aisuite/internal/observability"
	"github.com/PabloGalante/aisuite/internal/tui"
)

var (
	apiURL    string
	transport string
	cfg       *config.ClientConfig
)

var rootCmd = &cobra.Command{
	Use:   "aisuite-chat",
	Short: "Chat with the AI assistant from the terminal",
	Long: `Opens an interactive chat with the assistant.

Keys:
  Enter    send the message
  Ctrl+N   start a new chat
  Ctrl+R   retry the last failed message
  Esc      quit`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "chat API base URL (default $AISUITE_API_URL)")
	rootCmd.Flags().StringVar(&transport, "transport", "", "exchange transport: http or ws (default $AISUITE_TRANSPORT)")

	rootCmd.AddCommand(sendCmd, sessionsCmd, historyCmd, deleteCmd, modelInfoCmd)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadClient()
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if transport != "" {
		cfg.Transport = transport
	}
	return nil
}

// clientLogger writes to the configured log file. The TUI owns the
// terminal, so without a file the logs are dropped.
func clientLogger() (*slog.Logger, io.Closer, error) {
	if cfg.LogFile == "" {
		return observability.Discard(), nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return observability.Setup(f, cfg.LogLevel), f, nil
}

func newExchanger() (chatsession.Exchanger, io.Closer, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		return exchange.NewClient(cfg.APIURL), nopCloser{}, nil
	case config.TransportWS:
		ws := exchange.NewWSClient(cfg.APIURL)
		return ws, ws, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	log, logCloser, err := clientLogger()
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ex, exCloser, err := newExchanger()
	if err != nil {
		return err
	}
	defer exCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	ctrl := chatsession.NewController(ex,
		chatsession.WithTimeout(cfg.ExchangeTimeout),
		chatsession.WithLogger(log),
		chatsession.WithModelInfoSource(exchange.NewClient(cfg.APIURL)),
	)

	log.Info("chat client started", "api_url", cfg.APIURL, "transport", cfg.Transport)

	p := tea.NewProgram(tui.NewModel(ctx, ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running chat UI: %w", err)
	}
	return nil
}
