package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type EventType string

const (
	// timeline mutations
	EventTypeConversationChanged EventType = "conversation-changed"

	// replay lifecycle
	EventTypeReplayStarted   EventType = "replay-started"
	EventTypeReplayCompleted EventType = "replay-completed"
	EventTypeReplayFailed    EventType = "replay-failed"
)

// ChangeOp names the mutation that triggered a conversation-changed event.
type ChangeOp string

const (
	ChangeOpAppend ChangeOp = "append"
	ChangeOpEdit   ChangeOp = "edit"
	ChangeOpSwitch ChangeOp = "switch"
	ChangeOpPrune  ChangeOp = "prune"
	ChangeOpLoad   ChangeOp = "load"
)

type Event interface {
	Type() EventType
}

// EventConversationChanged is published after every successful mutation of a
// conversation. Ids are plain strings so display collaborators can consume
// the payload without importing the engine packages.
type EventConversationChanged struct {
	Type_          EventType `json:"type"`
	ConversationID string    `json:"conversationId"`
	ActiveLeafID   string    `json:"activeLeafId"`
	MessageID      string    `json:"messageId,omitempty"`
	Op             ChangeOp  `json:"op"`
}

func (e *EventConversationChanged) Type() EventType { return e.Type_ }

func NewConversationChangedEvent(conversationID, activeLeafID, messageID string, op ChangeOp) *EventConversationChanged {
	return &EventConversationChanged{
		Type_:          EventTypeConversationChanged,
		ConversationID: conversationID,
		ActiveLeafID:   activeLeafID,
		MessageID:      messageID,
		Op:             op,
	}
}

// EventReplay tracks the replay controller's state transitions.
type EventReplay struct {
	Type_          EventType `json:"type"`
	ConversationID string    `json:"conversationId"`
	Error          string    `json:"error,omitempty"`
}

func (e *EventReplay) Type() EventType { return e.Type_ }

func NewReplayStartedEvent(conversationID string) *EventReplay {
	return &EventReplay{Type_: EventTypeReplayStarted, ConversationID: conversationID}
}

func NewReplayCompletedEvent(conversationID string) *EventReplay {
	return &EventReplay{Type_: EventTypeReplayCompleted, ConversationID: conversationID}
}

func NewReplayFailedEvent(conversationID string, err error) *EventReplay {
	ret := &EventReplay{Type_: EventTypeReplayFailed, ConversationID: conversationID}
	if err != nil {
		ret.Error = err.Error()
	}
	return ret
}

// NewEventFromJson decodes a published payload back into its concrete event
// type, for handlers registered on the router.
func NewEventFromJson(b []byte) (Event, error) {
	var peek struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &peek); err != nil {
		return nil, errors.Wrap(err, "could not peek event type")
	}

	switch peek.Type {
	case EventTypeConversationChanged:
		var e EventConversationChanged
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, errors.Wrapf(err, "could not unmarshal %s event", peek.Type)
		}
		return &e, nil
	case EventTypeReplayStarted, EventTypeReplayCompleted, EventTypeReplayFailed:
		var e EventReplay
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, errors.Wrapf(err, "could not unmarshal %s event", peek.Type)
		}
		return &e, nil
	default:
		return nil, errors.Errorf("unknown event type %q", peek.Type)
	}
}
