package mail

import "context"

// Message is one inbound email. Identity fields are opaque to callers; the
// threading headers are carried so replies land in the original conversation.
type Message struct {
	ID         string
	ThreadID   string
	Subject    string
	From       string
	MessageID  string
	References string

	payload *part
}

// Transport is the mailbox contract the agent consumes. The Gmail
// implementation is the only production one; tests substitute fakes.
type Transport interface {
	// FetchNextUnread returns the oldest unread message from the configured
	// user address, or nil when the inbox has none.
	FetchNextUnread(ctx context.Context) (*Message, error)

	// ParseBody extracts the text content of a message: the plain-text part
	// when present, rendered HTML otherwise, with text from PDF attachments
	// appended.
	ParseBody(ctx context.Context, msg *Message) (string, error)

	// SendReply sends body as a threaded reply to msg.
	SendReply(ctx context.Context, msg *Message, body string) error

	// Archive marks msg read and removes it from the inbox.
	Archive(ctx context.Context, msg *Message) error

	// Send delivers a standalone message to the user, outside any thread.
	Send(ctx context.Context, subject, body string) error
}
