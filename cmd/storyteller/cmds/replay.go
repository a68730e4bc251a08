package cmds

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/storyteller/pkg/contextwindow"
	"github.com/go-go-golems/storyteller/pkg/conversation"
	"github.com/go-go-golems/storyteller/pkg/events"
	openai_engine "github.com/go-go-golems/storyteller/pkg/inference/engine/openai"
	"github.com/go-go-golems/storyteller/pkg/replay"
)

// consolePrinter is a minimal display collaborator: it renders lifecycle
// events to stdout as they arrive on the router.
type consolePrinter struct{}

func (consolePrinter) HandleConversationChanged(_ context.Context, e *events.EventConversationChanged) error {
	fmt.Printf("-- %s (message %s)\n", e.Op, e.MessageID)
	return nil
}

func (consolePrinter) HandleReplay(_ context.Context, e *events.EventReplay) error {
	switch e.Type() {
	case events.EventTypeReplayStarted:
		fmt.Println("-- replaying...")
	case events.EventTypeReplayFailed:
		fmt.Printf("-- replay failed: %s\n", e.Error)
	}
	return nil
}

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <conversation-id>",
		Short: "Re-submit the active branch to the model and append its reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stepSettings, err := loadSettings()
			if err != nil {
				return err
			}

			eng, err := openai_engine.NewEngine(stepSettings)
			if err != nil {
				return err
			}

			counter, err := contextwindow.NewTiktokenCounter(stepSettings.Chat.TokenEncoding)
			if err != nil {
				return err
			}
			selectorOptions := []contextwindow.SelectorOption{
				contextwindow.WithCounter(counter),
			}
			if stepSettings.Chat.Summarize {
				selectorOptions = append(selectorOptions,
					contextwindow.WithSummarizer(contextwindow.NewEngineSummarizer(eng)))
			}
			selector := contextwindow.NewSelector(selectorOptions...)

			router, err := events.NewEventRouter()
			if err != nil {
				return err
			}
			defer func() { _ = router.Close() }()

			// one publisher per event source so each topic only carries its
			// own events
			lifecycle := events.NewPublisherManager()
			lifecycle.SubscribePublisher(replay.ReplayTopic, router.Publisher)
			changes := events.NewPublisherManager()
			changes.SubscribePublisher(conversation.ChangeTopic, router.Publisher)

			router.RegisterEventHandler("console-replay", replay.ReplayTopic, consolePrinter{})
			router.RegisterEventHandler("console-changes", conversation.ChangeTopic, consolePrinter{})

			controller := replay.NewController(eng, selector,
				replay.WithBudget(stepSettings.Chat.ContextBudget),
				replay.WithPublisher(lifecycle),
			)

			m, err := loadManager(a, args[0], conversation.WithPublisher(changes))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(ctx)
			})
			eg.Go(func() error {
				defer cancel()
				<-router.Running()

				msg, err := controller.Replay(ctx, m)
				if err != nil {
					return err
				}
				if err := a.Save(m); err != nil {
					return err
				}

				fmt.Println(msg.View())
				return nil
			})

			return eg.Wait()
		},
	}
}

func newGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc <conversation-id>",
		Short: "Reclaim storage held by pruned branches",
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

			reclaimed := m.GC()
			if err := a.Save(m); err != nil {
				return err
			}

			fmt.Printf("reclaimed %d messages\n", reclaimed)
			return nil
		},
	}
}

// RegisterCommands attaches all storyteller subcommands to the root.
func RegisterCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		newNewCommand(),
		newShowCommand(),
		newAppendCommand(),
		newEditCommand(),
		newSwitchCommand(),
		newBranchesCommand(),
		newPruneCommand(),
		newGCCommand(),
		newReplayCommand(),
		newListCommand(),
		newDeleteCommand(),
		newExportCommand(),
		newImportCommand(),
	)
}
