package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildBasicConversation returns a tree with the classic three-message
// history: system "You are helpful." / user "Hi" / assistant "Hello."
func buildBasicConversation(t *testing.T) (*Tree, *Message, *Message, *Message) {
	t.Helper()
	tree := NewTree()

	system, err := tree.Append(NullNode, RoleSystem, "You are helpful.")
	require.NoError(t, err)
	user, err := tree.Append(system.ID, RoleUser, "Hi")
	require.NoError(t, err)
	assistant, err := tree.Append(user.ID, RoleAssistant, "Hello.")
	require.NoError(t, err)

	return tree, system, user, assistant
}

func TestAppendGrowsActiveBranch(t *testing.T) {
	tree, system, user, assistant := buildBasicConversation(t)

	require.Equal(t, assistant.ID, tree.ActiveLeafID())
	require.Equal(t, system.ID, tree.RootID())

	path := tree.ActivePath()
	require.Equal(t, []NodeID{system.ID, user.ID, assistant.ID}, path.IDs())
}

func TestAppendRejectsUnknownParent(t *testing.T) {
	tree, _, _, _ := buildBasicConversation(t)

	_, err := tree.Append(NewNodeID(), RoleUser, "floating")
	var invalidParent *InvalidParentError
	require.ErrorAs(t, err, &invalidParent)
}

func TestAppendRejectsSecondRoot(t *testing.T) {
	tree, _, _, _ := buildBasicConversation(t)

	_, err := tree.Append(NullNode, RoleSystem, "another root")
	var invalidParent *InvalidParentError
	require.ErrorAs(t, err, &invalidParent)
}

func TestEditAtBranchesWithoutLosingHistory(t *testing.T) {
	tree, system, user, assistant := buildBasicConversation(t)

	edited, err := tree.EditAt(user.ID, "Hi there")
	require.NoError(t, err)
	require.Equal(t, user.ParentID, edited.ParentID)
	require.Equal(t, user.Role, edited.Role)

	// the active path now runs through the edited sibling only
	path := tree.ActivePath()
	require.Equal(t, []NodeID{system.ID, edited.ID}, path.IDs())

	// the original message and its descendants are still in the store
	original, ok := tree.GetMessage(user.ID)
	require.True(t, ok)
	require.Equal(t, "Hi", original.Content)
	_, ok = tree.GetMessage(assistant.ID)
	require.True(t, ok)
}

func TestSwitchBranchRestoresOriginalHistory(t *testing.T) {
	tree, system, user, assistant := buildBasicConversation(t)

	_, err := tree.EditAt(user.ID, "Hi there")
	require.NoError(t, err)

	// switching back to the old descendant restores the original content
	require.NoError(t, tree.SwitchBranch(assistant.ID))

	path := tree.ActivePath()
	require.Equal(t, []NodeID{system.ID, user.ID, assistant.ID}, path.IDs())
	require.Equal(t, "Hi", path[1].Content)
	require.Equal(t, "Hello.", path[2].Content)
}

func TestSwitchBranchUnknownIDFails(t *testing.T) {
	tree, _, _, _ := buildBasicConversation(t)

	err := tree.SwitchBranch(NewNodeID())
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAppendTargetsCursorNotNewestMessage(t *testing.T) {
	tree, _, user, assistant := buildBasicConversation(t)

	// branch off by editing, then switch back to the original assistant
	edited, err := tree.EditAt(user.ID, "Hi there")
	require.NoError(t, err)
	require.NoError(t, tree.SwitchBranch(assistant.ID))

	// appending attaches under the cursor, not under the newest node
	followup, err := tree.AppendToActiveLeaf(RoleUser, "How are you?")
	require.NoError(t, err)
	require.Equal(t, assistant.ID, followup.ParentID)
	require.NotEqual(t, edited.ID, followup.ParentID)
}

func TestActivePathIsFreshAndRestartable(t *testing.T) {
	tree, _, _, _ := buildBasicConversation(t)

	first := tree.ActivePath()
	second := tree.ActivePath()
	require.Equal(t, first.IDs(), second.IDs())

	// mutating a returned slice must not affect subsequent calls
	first[0] = nil
	third := tree.ActivePath()
	require.NotNil(t, third[0])
}

func TestActivePathNeverCyclesAndEndsAtRoot(t *testing.T) {
	tree := NewTree()

	msg, err := tree.Append(NullNode, RoleUser, "m0")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		if i%3 == 0 {
			msg, err = tree.EditAt(msg.ID, "edited")
		} else {
			msg, err = tree.AppendToActiveLeaf(RoleUser, "appended")
		}
		require.NoError(t, err)
	}

	path := tree.ActivePath()
	require.NotEmpty(t, path)
	require.Equal(t, NullNode, path[0].ParentID)

	seen := map[NodeID]bool{}
	for _, m := range path {
		require.False(t, seen[m.ID], "cycle through %s", m.ID)
		seen[m.ID] = true
	}
}

func TestEditAtRootCreatesSiblingRoot(t *testing.T) {
	tree, system, _, _ := buildBasicConversation(t)

	edited, err := tree.EditAt(system.ID, "You are terse.")
	require.NoError(t, err)
	require.Equal(t, NullNode, edited.ParentID)
	require.Equal(t, edited.ID, tree.RootID())

	path := tree.ActivePath()
	require.Equal(t, []NodeID{edited.ID}, path.IDs())

	// the old root and its subtree are still reachable
	require.NoError(t, tree.SwitchBranch(system.ID))
	require.Equal(t, system.ID, tree.RootID())
}

func TestPruneBranchExcludesFromActivePath(t *testing.T) {
	tree, _, user, assistant := buildBasicConversation(t)

	edited, err := tree.EditAt(user.ID, "Hi there")
	require.NoError(t, err)

	// prune the original branch, identified by its leaf
	require.NoError(t, tree.PruneBranch(assistant.ID))
	require.True(t, tree.IsPruned(assistant.ID))
	require.True(t, tree.IsPruned(user.ID))
	require.False(t, tree.IsPruned(edited.ID))

	// still in the store until GC
	_, ok := tree.GetMessage(assistant.ID)
	require.True(t, ok)

	leaves := tree.Leaves()
	require.Equal(t, []NodeID{edited.ID}, leaves)
}

func TestPruneActiveBranchRelocatesCursor(t *testing.T) {
	tree, system, user, assistant := buildBasicConversation(t)

	_, err := tree.EditAt(user.ID, "Hi there")
	require.NoError(t, err)
	require.NoError(t, tree.SwitchBranch(assistant.ID))

	require.NoError(t, tree.PruneBranch(assistant.ID))

	// cursor moved to the divergence point, here the system root
	require.Equal(t, system.ID, tree.ActiveLeafID())
	require.True(t, tree.IsPruned(user.ID))
	require.False(t, tree.IsPruned(system.ID))
}

func TestPruneLinearConversationEmptiesActivePath(t *testing.T) {
	tree, _, _, assistant := buildBasicConversation(t)

	// with no fork, the branch is the whole root-to-leaf chain
	require.NoError(t, tree.PruneBranch(assistant.ID))
	require.Empty(t, tree.ActivePath())
	require.Equal(t, NullNode, tree.ActiveLeafID())

	// everything stays recoverable until GC
	require.NoError(t, tree.SwitchBranch(assistant.ID))
	require.Len(t, tree.ActivePath(), 3)
}

func TestSwitchBranchRevivesPrunedBranch(t *testing.T) {
	tree, system, user, assistant := buildBasicConversation(t)

	require.NoError(t, tree.PruneBranch(assistant.ID))
	require.NoError(t, tree.SwitchBranch(assistant.ID))

	path := tree.ActivePath()
	require.Equal(t, []NodeID{system.ID, user.ID, assistant.ID}, path.IDs())
	require.False(t, tree.IsPruned(assistant.ID))
}

func TestGCReclaimsPrunedNodes(t *testing.T) {
	tree, _, _, assistant := buildBasicConversation(t)

	_, err := tree.EditAt(assistant.ID, "Hello again.")
	require.NoError(t, err)

	require.NoError(t, tree.PruneBranch(assistant.ID))
	reclaimed := tree.GC()
	require.Equal(t, 1, reclaimed)

	_, ok := tree.GetMessage(assistant.ID)
	require.False(t, ok)
	require.Equal(t, 3, tree.Store().Len())
}

func TestPrunedIDsListEveryPrunedNode(t *testing.T) {
	tree, _, user, assistant := buildBasicConversation(t)

	_, err := tree.EditAt(user.ID, "Hi there")
	require.NoError(t, err)
	require.NoError(t, tree.PruneBranch(assistant.ID))

	// the exclusive ancestor is pruned along with the subtree
	require.Equal(t, []NodeID{user.ID, assistant.ID}, tree.PrunedIDs())
}

func TestPrunedIDsAfterPartialRevival(t *testing.T) {
	tree, _, user, assistant := buildBasicConversation(t)

	require.NoError(t, tree.PruneBranch(assistant.ID))
	require.NoError(t, tree.SwitchBranch(user.ID))

	// the revived ancestor chain drops out, the descendant stays pruned
	require.Equal(t, []NodeID{assistant.ID}, tree.PrunedIDs())
	require.False(t, tree.IsPruned(user.ID))
}
