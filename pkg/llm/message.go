package llm

// Roles used by chat-style completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a chat completion request.
// Only plain text content is supported; the field values are exactly what
// gets sent on the wire and what local token counting encodes.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // Text content
	Name    string `json:"name,omitempty"`
}

// Field is a single key/value pair of a message as seen by token counting.
type Field struct {
	Key   string
	Value string
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: text,
	}
}

// Fields returns the populated message fields in wire order: role, content,
// then name when present. Role and content are always included, even when
// empty, since they are always serialized.
func (m Message) Fields() []Field {
	fields := []Field{
		{Key: "role", Value: m.Role},
		{Key: "content", Value: m.Content},
	}
	if m.Name != "" {
		fields = append(fields, Field{Key: "name", Value: m.Name})
	}
	return fields
}
