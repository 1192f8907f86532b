package chat

// PostMessageCommand is the intent of a connection to publish a message.
// Author and Content are accepted as-is, no validation happens server-side.
type PostMessageCommand struct {
	ConnectionID string
	Author       string
	Content      string
}

// GetMessageCommand asks for the most recent messages, oldest first.
type GetMessageCommand struct {
	Limit int
}
