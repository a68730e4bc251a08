package contextwindow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/storyteller/pkg/conversation"
	"github.com/go-go-golems/storyteller/pkg/inference/engine"
)

const summarizerPrompt = `Summarize the following conversation excerpt in a compact paragraph.
Preserve decisions, facts and user intent; drop pleasantries. The summary
replaces these messages in the model's context.`

// EngineSummarizer implements the summarizer collaborator by asking a model
// to condense the dropped prefix. It can point at a cheaper model than the
// one used for the conversation itself.
type EngineSummarizer struct {
	engine engine.Engine
}

func NewEngineSummarizer(eng engine.Engine) *EngineSummarizer {
	return &EngineSummarizer{engine: eng}
}

var _ Summarizer = (*EngineSummarizer)(nil)

func (s *EngineSummarizer) Summarize(ctx context.Context, messages conversation.Conversation) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	prompt := conversation.Conversation{
		conversation.NewMessage(conversation.RoleSystem, summarizerPrompt),
		conversation.NewMessage(conversation.RoleUser, messages.GetSinglePrompt()),
	}

	summary, err := s.engine.Complete(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(err, "summarizer engine failed")
	}
	return summary, nil
}
