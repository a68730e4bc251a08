package conversation

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// documentVersion is bumped when the persisted layout changes shape.
const documentVersion = 1

// document is the durable form of a conversation. The context window
// selection is deliberately absent: it is derived state, recomputed before
// every replay.
type document struct {
	Version        int        `json:"version"`
	ConversationID uuid.UUID  `json:"conversationId"`
	Title          string     `json:"title,omitempty"`
	ModelProfile   string     `json:"modelProfile,omitempty"`
	Messages       []*Message `json:"messages"`
	ActiveLeafID   NodeID     `json:"activeLeafId"`
	PrunedIDs      []NodeID   `json:"prunedIds,omitempty"`
}

// Encode serializes the manager's conversation to a JSON document.
// The round-trip law holds: Decode(Encode(m)) yields a timeline isomorphic
// to m's, same ids, same parent links, same active leaf, pruned branches
// included.
func Encode(m *ManagerImpl) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encodeLocked()
}

func (m *ManagerImpl) encodeLocked() ([]byte, error) {
	doc := document{
		Version:        documentVersion,
		ConversationID: m.conversationID,
		Title:          m.title,
		ModelProfile:   m.modelProfile,
		Messages:       m.tree.Store().Messages(),
		ActiveLeafID:   m.tree.ActiveLeafID(),
		PrunedIDs:      m.tree.PrunedIDs(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode rebuilds a manager from a serialized document, rejecting any
// document that fails referential integrity: dangling parents, duplicate
// ids, cycles, or an unknown active leaf all yield CorruptDataError. Broken
// graphs are never silently accepted; callers that want best-effort loading
// use DecodeRepair instead.
func Decode(data []byte, options ...ManagerOption) (*ManagerImpl, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	if reason := checkIntegrity(doc); reason != "" {
		return nil, &CorruptDataError{Reason: reason}
	}

	return buildManager(doc, doc.Messages, options...)
}

// DecodeRepair is the explicit best-effort variant: messages whose parent
// chain does not reach a root are dropped as orphaned subtrees, and the ids
// of everything dropped are returned alongside the manager. Duplicate ids
// and an unparseable document are still fatal, there is nothing principled
// to salvage there.
func DecodeRepair(data []byte, options ...ManagerOption) (*ManagerImpl, []NodeID, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[NodeID]*Message, len(doc.Messages))
	for _, msg := range doc.Messages {
		if _, dup := byID[msg.ID]; dup {
			return nil, nil, &CorruptDataError{Reason: "duplicate message id " + msg.ID.String()}
		}
		byID[msg.ID] = msg
	}

	kept, dropped := splitOrphans(doc.Messages, byID)
	if len(dropped) > 0 {
		log.Warn().
			Int("dropped", len(dropped)).
			Msg("repaired conversation by dropping orphaned subtrees")
	}

	// the cursor may have been inside a dropped subtree
	keptIDs := make(map[NodeID]bool, len(kept))
	for _, msg := range kept {
		keptIDs[msg.ID] = true
	}
	if doc.ActiveLeafID != NullNode && !keptIDs[doc.ActiveLeafID] && len(kept) > 0 {
		doc.ActiveLeafID = kept[len(kept)-1].ID
	}

	prunedKept := doc.PrunedIDs[:0]
	for _, id := range doc.PrunedIDs {
		if keptIDs[id] {
			prunedKept = append(prunedKept, id)
		}
	}
	doc.PrunedIDs = prunedKept

	m, err := buildManager(doc, kept, options...)
	if err != nil {
		return nil, nil, err
	}
	return m, dropped, nil
}

// LoadFromFile reads and decodes a conversation document.
func LoadFromFile(filename string, options ...ManagerOption) (*ManagerImpl, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Decode(data, options...)
}

func parseDocument(data []byte) (*document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptDataError{Reason: err.Error()}
	}
	return &doc, nil
}

// checkIntegrity validates the referential invariants of a document and
// returns a human-readable reason on failure, or "" when the graph is sound.
func checkIntegrity(doc *document) string {
	byID := make(map[NodeID]*Message, len(doc.Messages))
	for _, msg := range doc.Messages {
		if _, dup := byID[msg.ID]; dup {
			return "duplicate message id " + msg.ID.String()
		}
		byID[msg.ID] = msg
	}

	for _, msg := range doc.Messages {
		if msg.ParentID == NullNode {
			continue
		}
		if _, ok := byID[msg.ParentID]; !ok {
			return "message " + msg.ID.String() + " references missing parent " + msg.ParentID.String()
		}
	}

	// parent chains must terminate at a root; a chain longer than the
	// message count can only mean a cycle
	for _, msg := range doc.Messages {
		steps := 0
		for cur := msg; cur.ParentID != NullNode; cur = byID[cur.ParentID] {
			steps++
			if steps > len(doc.Messages) {
				return "cycle detected through message " + msg.ID.String()
			}
		}
	}

	// a null active leaf is the legal empty-cursor state left behind when
	// every message of an unforked conversation was pruned
	if doc.ActiveLeafID != NullNode {
		if _, ok := byID[doc.ActiveLeafID]; !ok {
			return "active leaf " + doc.ActiveLeafID.String() + " is not in the message set"
		}
	}

	for _, id := range doc.PrunedIDs {
		if _, ok := byID[id]; !ok {
			return "pruned id " + id.String() + " is not in the message set"
		}
	}

	return ""
}

// splitOrphans partitions messages into those whose parent chain reaches a
// root and orphans (including anything hanging below an orphan).
func splitOrphans(msgs []*Message, byID map[NodeID]*Message) (Conversation, []NodeID) {
	reachable := make(map[NodeID]bool, len(msgs))

	var reaches func(msg *Message, depth int) bool
	reaches = func(msg *Message, depth int) bool {
		if depth > len(msgs) {
			return false // cycle
		}
		if reachable[msg.ID] {
			return true
		}
		if msg.ParentID == NullNode {
			reachable[msg.ID] = true
			return true
		}
		parent, ok := byID[msg.ParentID]
		if !ok {
			return false
		}
		if reaches(parent, depth+1) {
			reachable[msg.ID] = true
			return true
		}
		return false
	}

	var kept Conversation
	var dropped []NodeID
	for _, msg := range msgs {
		if reaches(msg, 0) {
			kept = append(kept, msg)
		} else {
			dropped = append(dropped, msg.ID)
		}
	}
	return kept, dropped
}

// buildManager reconstructs the in-memory tree from validated messages.
func buildManager(doc *document, msgs Conversation, options ...ManagerOption) (*ManagerImpl, error) {
	m := NewManager(
		WithConversationID(doc.ConversationID),
		WithTitle(doc.Title),
		WithModelProfile(doc.ModelProfile),
	)
	for _, option := range options {
		option(m)
	}

	tree := m.tree
	sortByCreatedAt(msgs)
	for _, msg := range msgs {
		msg.Children = nil
		tree.Store().restore(msg)
		tree.attach(msg)
	}

	// rootOf(NullNode) is NullNode, so a fully pruned conversation restores
	// its empty cursor verbatim
	tree.activeLeafID = doc.ActiveLeafID
	tree.rootID = tree.rootOf(doc.ActiveLeafID)

	// restore pruned marks directly: replaying PruneBranch would cascade
	// through nodes a later SwitchBranch had revived
	for _, id := range doc.PrunedIDs {
		if !tree.Store().Has(id) {
			return nil, &CorruptDataError{Reason: "pruned id " + id.String() + " is not in the message set"}
		}
		tree.markPruned(id)
	}

	return m, nil
}
