// Package idgen hands out identifiers for sessions and messages.
//
// Session ids are random UUIDs so clients cannot guess each other's
// conversations. Message ids are Snowflake ids: time ordered, so sorting
// by id matches insertion order across server instances.
package idgen

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init sets the Snowflake node id (0..1023). Calling it again replaces the node.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

func current() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		// node 0 is always valid
		node, _ = snowflake.NewNode(0)
	}
	return node
}

// NewMessageID returns a time-ordered message id.
func NewMessageID() string {
	return strconv.FormatInt(current().Generate().Int64(), 10)
}

// NewSessionID returns a random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// NewRequestID returns an id for correlating a request with its reply.
func NewRequestID() string {
	return uuid.NewString()
}
