package domain

// Message is one persisted turn of a chat session (user or assistant).
type Message struct {
	ID        MessageID
	SessionID SessionID
	Role      Role
	Content   string
	CreatedAt Timestamp

	// Only set on assistant messages.
	Intent     Intent
	Confidence float64
}

// Session is a conversation thread. Messages live in the MessageStore.
type Session struct {
	ID        SessionID
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// ModelInfo describes the reply generator currently serving chats.
type ModelInfo struct {
	ModelName         string
	Backend           string
	IsLoaded          bool
	MaxResponseLength int
	MaxContextLength  int
}
