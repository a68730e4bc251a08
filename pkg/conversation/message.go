package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

// NullNode is the parent of root messages.
var NullNode = NodeID(uuid.Nil)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Message is a single immutable node in the conversation timeline.
//
// Messages are never mutated after creation: editing a message creates a
// sibling node with the same ParentID and new content, which starts a new
// branch. CreatedAt is a logical clock maintained by the Store, so message
// order within a branch follows append order rather than wall-clock time.
type Message struct {
	ID        NodeID `json:"id"`
	ParentID  NodeID `json:"parentId"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`

	// child links are rebuilt from ParentID on load, never serialized
	Children []*Message `json:"-"`
}

type MessageOption func(*Message)

func WithID(id NodeID) MessageOption {
	return func(msg *Message) {
		msg.ID = id
	}
}

func WithParentID(parentID NodeID) MessageOption {
	return func(msg *Message) {
		msg.ParentID = parentID
	}
}

func WithCreatedAt(createdAt int64) MessageOption {
	return func(msg *Message) {
		msg.CreatedAt = createdAt
	}
}

// NewMessage builds a detached message that is not registered in any Store.
// The Store and the persistence codec use it internally; the context window
// manager uses it to splice synthetic summary messages into a selection.
func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:       NewNodeID(),
		ParentID: NullNode,
		Role:     role,
		Content:  content,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (msg *Message) View() string {
	return fmt.Sprintf("[%s]: %s", msg.Role, strings.TrimRight(msg.Content, "\n"))
}

// Conversation is an ordered, root-first sequence of messages along one
// branch of the timeline.
type Conversation []*Message

// GetSinglePrompt concatenates all the messages together with a role tag in
// front, collapsing a single-message conversation to its bare content.
func (messages Conversation) GetSinglePrompt() string {
	if len(messages) == 0 {
		return ""
	}

	if len(messages) == 1 {
		return messages[0].Content
	}

	prompt := ""
	for _, message := range messages {
		prompt += fmt.Sprintf("[%s]: %s\n", message.Role, message.Content)
	}

	return prompt
}

// IDs returns the message ids in order, mostly useful for tests and logging.
func (messages Conversation) IDs() []NodeID {
	ids := make([]NodeID, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
	}
	return ids
}
