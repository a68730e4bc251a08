package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/storyteller/pkg/conversation"
)

func newNewCommand() *cobra.Command {
	var systemPrompt string
	var title string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m := conversation.NewManager(
				conversation.WithTitle(title),
				conversation.WithSystemPrompt(systemPrompt),
			)
			if err := a.Save(m); err != nil {
				return err
			}

			fmt.Println(m.ConversationID())
			return nil
		},
	}

	cmd.Flags().StringVar(&systemPrompt, "system", "", "Root system message")
	cmd.Flags().StringVar(&title, "title", "", "Conversation title")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print the active branch of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := loadManager(a, args[0])
			if err != nil {
				return err
			}

			printConversation(m.Conversation())
			return nil
		},
	}
}

func newAppendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "append <conversation-id> <role> <content>",
		Short: "Append a message under the active leaf",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := loadManager(a, args[0])
			if err != nil {
				return err
			}

			role, err := conversation.ParseRole(args[1])
			if err != nil {
				return err
			}

			msg, err := m.Append(role, args[2])
			if err != nil {
				return err
			}
			if err := a.Save(m); err != nil {
				return err
			}

			fmt.Println(msg.ID)
			return nil
		},
	}
}

func newEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <conversation-id> <message-id> <content>",
		Short: "Rewrite a message, branching the timeline at that point",
		Long: `edit never destroys history: it creates a sibling of the given message
with the new content and moves the cursor onto it. The original message and
everything that followed it stay recoverable via switch.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := loadManager(a, args[0])
			if err != nil {
				return err
			}

			messageID, err := parseNodeID(args[1])
			if err != nil {
				return err
			}

			msg, err := m.EditAt(messageID, args[2])
			if err != nil {
				return err
			}
			if err := a.Save(m); err != nil {
				return err
			}

			fmt.Println(msg.ID)
			return nil
		},
	}
}

func newSwitchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <conversation-id> <message-id>",
		Short: "Move the cursor to another branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := loadManager(a, args[0])
			if err != nil {
				return err
			}

			messageID, err := parseNodeID(args[1])
			if err != nil {
				return err
			}

			if err := m.SwitchBranch(messageID); err != nil {
				return err
			}
			if err := a.Save(m); err != nil {
				return err
			}

			printConversation(m.Conversation())
			return nil
		},
	}
}

func newBranchesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "branches <conversation-id>",
		Short: "List all live branch endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := loadManager(a, args[0])
			if err != nil {
				return err
			}

			active := m.ActiveLeafID()
			for _, leafID := range m.Tree().Leaves() {
				marker := " "
				if leafID == active {
					marker = "*"
				}
				msg, _ := m.GetMessage(leafID)
				fmt.Printf("%s %s  %s\n", marker, leafID, msg.View())
			}
			return nil
		},
	}
}

func newPruneCommand() *cobra.Command {
	var gc bool

	cmd := &cobra.Command{
		Use:   "prune <conversation-id> <message-id>",
		Short: "Prune a branch from the timeline",
		Long: `prune hides the branch containing the given message from the active path
and from future context windows. Pruned branches are kept on disk until a
--gc pass reclaims them, so pruning is reversible via switch.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := loadManager(a, args[0])
			if err != nil {
				return err
			}

			messageID, err := parseNodeID(args[1])
			if err != nil {
				return err
			}

			if err := m.PruneBranch(messageID); err != nil {
				return err
			}
			if gc {
				reclaimed := m.GC()
				fmt.Printf("reclaimed %d messages\n", reclaimed)
			}

			return a.Save(m)
		},
	}

	cmd.Flags().BoolVar(&gc, "gc", false, "Reclaim pruned storage immediately")
	return cmd
}

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <conversation-id> <file>",
		Short: "Write a conversation document to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := loadManager(a, args[0])
			if err != nil {
				return err
			}

			return m.SaveToFile(args[1])
		},
	}
}

func newImportCommand() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a conversation document into the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var m *conversation.ManagerImpl
			if repair {
				data, err := readFile(args[0])
				if err != nil {
					return err
				}
				var dropped []conversation.NodeID
				m, dropped, err = conversation.DecodeRepair(data)
				if err != nil {
					return err
				}
				if len(dropped) > 0 {
					fmt.Printf("dropped %d orphaned messages\n", len(dropped))
				}
			} else {
				m, err = conversation.LoadFromFile(args[0])
				if err != nil {
					return err
				}
			}

			if err := a.Save(m); err != nil {
				return err
			}
			fmt.Println(m.ConversationID())
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Drop orphaned subtrees instead of rejecting a broken document")
	return cmd
}
