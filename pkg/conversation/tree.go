package conversation

import (
	"github.com/rs/zerolog/log"
)

// Tree is the branching timeline over a Store.
//
// Nodes are connected through the ParentID field of each message; edits
// create sibling nodes instead of mutating in place, so every version of the
// history stays reachable. The tree tracks a single cursor, the active leaf,
// which designates the branch currently considered "the conversation".
// Because new nodes always get fresh ids and parent pointers are never
// rewired backward, the structure is acyclic by construction.
//
// A branch can be pruned, which hides it from ActivePath and from
// persistence compaction without reclaiming its storage; an explicit GC pass
// removes pruned nodes for good.
type Tree struct {
	store        *Store
	rootID       NodeID
	activeLeafID NodeID
	pruned       map[NodeID]bool
}

func NewTree() *Tree {
	return &Tree{
		store:  NewStore(),
		pruned: make(map[NodeID]bool),
	}
}

func (t *Tree) Store() *Store {
	return t.store
}

// RootID returns the root of the branch the active leaf sits on.
func (t *Tree) RootID() NodeID {
	return t.rootID
}

func (t *Tree) ActiveLeafID() NodeID {
	return t.activeLeafID
}

// Append creates a new message as a child of parentID and makes it the
// active leaf. An empty tree accepts a NullNode parent to create the root;
// any other unknown parent is an integrity violation.
//
// Note that "active" always means "where the cursor currently is": after a
// branch switch, appends attach to the switched-to leaf, not to the most
// recently created node anywhere in the tree.
func (t *Tree) Append(parentID NodeID, role Role, content string) (*Message, error) {
	if parentID == NullNode && t.rootID != NullNode {
		return nil, &InvalidParentError{ParentID: parentID}
	}

	msg, err := t.store.Create(role, content, parentID)
	if err != nil {
		return nil, err
	}

	t.attach(msg)
	t.activeLeafID = msg.ID
	if t.rootID == NullNode {
		t.rootID = msg.ID
	}

	log.Trace().
		Str("message_id", msg.ID.String()).
		Str("parent_id", parentID.String()).
		Str("role", string(role)).
		Msg("appended message")

	return msg, nil
}

// AppendToActiveLeaf appends under the cursor, growing the active branch.
func (t *Tree) AppendToActiveLeaf(role Role, content string) (*Message, error) {
	return t.Append(t.activeLeafID, role, content)
}

// EditAt creates a sibling of messageID carrying newContent and moves the
// cursor onto it. The original message and all its descendants stay in the
// store as a now-inactive branch, so switching back later recovers them
// verbatim. Editing a root message creates a sibling root.
func (t *Tree) EditAt(messageID NodeID, newContent string) (*Message, error) {
	original, err := t.store.Get(messageID)
	if err != nil {
		return nil, err
	}

	sibling, err := t.store.Create(original.Role, newContent, original.ParentID)
	if err != nil {
		return nil, err
	}

	t.attach(sibling)
	t.activeLeafID = sibling.ID
	if original.ParentID == NullNode {
		t.rootID = sibling.ID
	}

	log.Trace().
		Str("original_id", messageID.String()).
		Str("sibling_id", sibling.ID.String()).
		Msg("edited message as sibling branch")

	return sibling, nil
}

// SwitchBranch moves the cursor to messageID, changing which root-to-leaf
// path is current. Switching onto a pruned branch revives it.
func (t *Tree) SwitchBranch(messageID NodeID) error {
	msg, err := t.store.Get(messageID)
	if err != nil {
		return err
	}

	t.activeLeafID = messageID
	t.rootID = t.rootOf(messageID)

	// revive the path up to the root so ActivePath sees it again
	for cur := msg; cur != nil; cur = t.parentOf(cur) {
		delete(t.pruned, cur.ID)
	}

	return nil
}

// ActivePath walks parent links from the active leaf to its root and
// returns the path in root-first order. Each call builds a fresh slice and
// mutates nothing, so callers can iterate it repeatedly.
func (t *Tree) ActivePath() Conversation {
	var path Conversation
	id := t.activeLeafID
	for id != NullNode {
		msg, err := t.store.Get(id)
		if err != nil {
			break
		}
		path = append(Conversation{msg}, path...)
		id = msg.ParentID
	}
	return path
}

// PruneBranch marks messageID, its entire subtree, and its exclusive
// ancestors up to the divergence point as pruned. Pruned nodes are excluded
// from ActivePath and from persistence compaction but stay in the store
// until GC reclaims them. If the cursor was inside the pruned span it is
// relocated to the divergence point (or to the new root-side survivor).
func (t *Tree) PruneBranch(messageID NodeID) error {
	msg, err := t.store.Get(messageID)
	if err != nil {
		return err
	}

	t.pruneSubtree(msg)

	// walk up while the current node is the only live child of its parent
	top := msg
	for {
		parent := t.parentOf(top)
		if parent == nil {
			break
		}
		if t.liveChildCountOf(parent) > 0 {
			break
		}
		t.pruned[parent.ID] = true
		top = parent
	}

	if t.pruned[t.activeLeafID] {
		if parent := t.parentOf(top); parent != nil {
			t.activeLeafID = parent.ID
		} else {
			t.relocateCursor()
		}
	}

	log.Debug().
		Str("message_id", messageID.String()).
		Int("pruned_total", len(t.pruned)).
		Msg("pruned branch")

	return nil
}

// IsPruned reports whether a node is currently marked pruned.
func (t *Tree) IsPruned(id NodeID) bool {
	return t.pruned[id]
}

// PrunedIDs returns every pruned node id in creation order. The codec
// persists the exact set: pruned marks stop forming whole spans once a
// branch was partially revived, so leaves alone could not reconstruct them.
func (t *Tree) PrunedIDs() []NodeID {
	var ids []NodeID
	for _, msg := range t.store.Messages() {
		if t.pruned[msg.ID] {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

// markPruned sets the pruned flag without any cascade or cursor relocation.
// The codec uses it to restore persisted marks verbatim.
func (t *Tree) markPruned(id NodeID) {
	t.pruned[id] = true
}

// GC removes pruned nodes from the store for good and returns how many were
// reclaimed. The active branch is never touched since pruning already moved
// the cursor off any pruned span.
func (t *Tree) GC() int {
	reclaimed := 0
	for id := range t.pruned {
		if msg, err := t.store.Get(id); err == nil {
			if parent := t.parentOf(msg); parent != nil {
				parent.Children = removeChild(parent.Children, id)
			}
		}
		t.store.remove(id)
		delete(t.pruned, id)
		reclaimed++
	}
	if reclaimed > 0 {
		log.Debug().Int("reclaimed", reclaimed).Msg("garbage-collected pruned branches")
	}
	return reclaimed
}

// Leaves returns all non-pruned leaf ids ordered by creation time, i.e. the
// set of branch endpoints SwitchBranch can meaningfully target.
func (t *Tree) Leaves() []NodeID {
	var leaves []NodeID
	for _, msg := range t.store.Messages() {
		if t.pruned[msg.ID] {
			continue
		}
		if t.liveChildCountOf(msg) == 0 {
			leaves = append(leaves, msg.ID)
		}
	}
	return leaves
}

func (t *Tree) GetMessage(id NodeID) (*Message, bool) {
	msg, err := t.store.Get(id)
	if err != nil {
		return nil, false
	}
	return msg, true
}

func (t *Tree) attach(msg *Message) {
	if parent := t.parentOf(msg); parent != nil {
		parent.Children = append(parent.Children, msg)
	}
}

func (t *Tree) parentOf(msg *Message) *Message {
	if msg.ParentID == NullNode {
		return nil
	}
	parent, err := t.store.Get(msg.ParentID)
	if err != nil {
		return nil
	}
	return parent
}

func (t *Tree) rootOf(id NodeID) NodeID {
	root := id
	for {
		msg, err := t.store.Get(root)
		if err != nil || msg.ParentID == NullNode {
			return root
		}
		root = msg.ParentID
	}
}

func (t *Tree) pruneSubtree(msg *Message) {
	t.pruned[msg.ID] = true
	for _, child := range msg.Children {
		t.pruneSubtree(child)
	}
}

func (t *Tree) liveChildCountOf(msg *Message) int {
	n := 0
	for _, child := range msg.Children {
		if !t.pruned[child.ID] {
			n++
		}
	}
	return n
}

// relocateCursor finds the most recent live message to park the cursor on
// after a prune emptied the active branch entirely.
func (t *Tree) relocateCursor() {
	msgs := t.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if !t.pruned[msgs[i].ID] {
			t.activeLeafID = msgs[i].ID
			t.rootID = t.rootOf(msgs[i].ID)
			return
		}
	}
	t.activeLeafID = NullNode
	t.rootID = NullNode
}

func removeChild(children []*Message, id NodeID) []*Message {
	out := children[:0]
	for _, child := range children {
		if child.ID != id {
			out = append(out, child)
		}
	}
	return out
}
