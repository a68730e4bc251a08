package conversation

import "sort"

// Store is the append-only record of every message ever created in a
// conversation, keyed by NodeID. There is no update or delete: "editing" is
// implemented entirely by timeline branching on top of the store, which
// keeps the full history around for undo and recovery.
//
// The store also owns the logical clock that stamps CreatedAt on each
// message, so creation order is total within a single store.
type Store struct {
	nodes map[NodeID]*Message
	clock int64
}

func NewStore() *Store {
	return &Store{
		nodes: make(map[NodeID]*Message),
	}
}

// Create allocates a new message with a fresh id and the next logical
// timestamp. A non-null parentID must already be present in the store.
func (s *Store) Create(role Role, content string, parentID NodeID) (*Message, error) {
	if parentID != NullNode {
		if _, exists := s.nodes[parentID]; !exists {
			return nil, &InvalidParentError{ParentID: parentID}
		}
	}

	s.clock++
	msg := NewMessage(role, content,
		WithParentID(parentID),
		WithCreatedAt(s.clock),
	)
	s.nodes[msg.ID] = msg

	return msg, nil
}

func (s *Store) Get(id NodeID) (*Message, error) {
	msg, exists := s.nodes[id]
	if !exists {
		return nil, &NotFoundError{ID: id}
	}
	return msg, nil
}

func (s *Store) Has(id NodeID) bool {
	_, exists := s.nodes[id]
	return exists
}

func (s *Store) Len() int {
	return len(s.nodes)
}

// Messages returns all stored messages ordered by logical creation time.
func (s *Store) Messages() Conversation {
	msgs := make(Conversation, 0, len(s.nodes))
	for _, msg := range s.nodes {
		msgs = append(msgs, msg)
	}
	sortByCreatedAt(msgs)
	return msgs
}

// restore inserts a message deserialized by the codec, keeping the logical
// clock ahead of every restored timestamp.
func (s *Store) restore(msg *Message) {
	s.nodes[msg.ID] = msg
	if msg.CreatedAt > s.clock {
		s.clock = msg.CreatedAt
	}
}

// remove is only called by the tree's garbage-collection pass.
func (s *Store) remove(id NodeID) {
	delete(s.nodes, id)
}

func sortByCreatedAt(msgs Conversation) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})
}
