package domain

import "time"

type SessionID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Intent is the label the assistant engine assigns to a user message.
type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentFarewell   Intent = "farewell"
	IntentGratitude  Intent = "gratitude"
	IntentQuestion   Intent = "question"
	IntentHelp       Intent = "help"
	IntentCapability Intent = "capability"
	IntentIdentity   Intent = "identity"
	IntentGeneral    Intent = "general"
)

type Timestamp = time.Time
