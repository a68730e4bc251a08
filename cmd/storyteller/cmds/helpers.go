package cmds

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/storyteller/pkg/archive"
	"github.com/go-go-golems/storyteller/pkg/conversation"
	"github.com/go-go-golems/storyteller/pkg/settings"
)

func openArchive() (*archive.Archive, error) {
	path := viper.GetString("archive")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return archive.Open(path)
}

func loadSettings() (*settings.StepSettings, error) {
	profile := viper.GetString("profile")
	if profile == "" {
		s := settings.NewStepSettings()
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			s.API.APIKeys["openai-api-key"] = key
		}
		return s, nil
	}
	return settings.NewStepSettingsFromFile(profile)
}

func loadManager(a *archive.Archive, idArg string, options ...conversation.ManagerOption) (*conversation.ManagerImpl, error) {
	id, err := uuid.Parse(idArg)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid conversation id %q", idArg)
	}
	return a.Load(id, options...)
}

func parseNodeID(arg string) (conversation.NodeID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return conversation.NullNode, errors.Wrapf(err, "invalid message id %q", arg)
	}
	return conversation.NodeID(id), nil
}

func printConversation(msgs conversation.Conversation) {
	for _, msg := range msgs {
		fmt.Printf("%s  %s\n", msg.ID, msg.View())
	}
}
