package conversation

// Package conversation implements the editable conversation history engine:
// an append-only message store, a branching timeline over it, and the
// manager that owns one conversation's cursor and metadata.
//
// The Manager interface is the main entry point for hosts. All mutating
// operations go through it so that a single conversation instance can be
// shared with read-only collaborators (display, replay) while mutation stays
// serialized behind one lock.

// Manager defines the high-level operations on a single conversation.
type Manager interface {
	// Conversation returns the active root-to-leaf path, root first.
	Conversation() Conversation
	// Append adds a message under the current active leaf.
	Append(role Role, content string) (*Message, error)
	// EditAt branches the timeline by creating a sibling of messageID.
	EditAt(messageID NodeID, newContent string) (*Message, error)
	// SwitchBranch moves the cursor to another message.
	SwitchBranch(messageID NodeID) error
	// PruneBranch hides a branch from the active path and from compaction.
	PruneBranch(messageID NodeID) error
	// GetMessage looks a message up by id anywhere in the timeline.
	GetMessage(id NodeID) (*Message, bool)

	ActiveLeafID() NodeID
	Title() string
	SetTitle(title string)

	SaveToFile(filename string) error
}
