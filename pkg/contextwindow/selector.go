package contextwindow

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/storyteller/pkg/conversation"
)

// Summarizer condenses a span of dropped messages into a single text so that
// earlier intent survives truncation. It is an optional collaborator; when
// absent, truncation is silently lossy (a documented policy, not an error).
type Summarizer interface {
	Summarize(ctx context.Context, messages conversation.Conversation) (string, error)
}

// messageOverhead is the flat per-message framing cost charged on top of the
// content tokens, matching the OpenAI chat format accounting.
const messageOverhead = 4

// Selector computes the bounded context window for a branch: the subset of
// the active path that fits the token budget and actually gets sent to the
// model.
type Selector struct {
	counter    Counter
	summarizer Summarizer
}

type SelectorOption func(*Selector)

func WithCounter(counter Counter) SelectorOption {
	return func(s *Selector) {
		s.counter = counter
	}
}

func WithSummarizer(summarizer Summarizer) SelectorOption {
	return func(s *Selector) {
		s.summarizer = summarizer
	}
}

func NewSelector(options ...SelectorOption) *Selector {
	ret := &Selector{
		counter: RuneCounter{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Select walks the path from the most recent message backward, accumulating
// token cost per message until the budget would be exceeded. A root system
// message is always retained regardless of budget and re-inserted at the
// front. When truncation drops messages and a summarizer is configured, the
// dropped prefix is condensed into a synthetic system message spliced
// between the retained system message and the first retained message.
//
// Select never returns an empty window for a non-empty path: the most recent
// message is included even when it alone exceeds the budget, so at least one
// turn of context survives.
func (s *Selector) Select(ctx context.Context, path conversation.Conversation, budget int) (conversation.Conversation, error) {
	if len(path) == 0 {
		return nil, nil
	}

	var system *conversation.Message
	rest := path
	if path[0].Role == conversation.RoleSystem {
		system = path[0]
		rest = path[1:]
	}

	remaining := budget
	if system != nil {
		cost, err := s.cost(system)
		if err != nil {
			return nil, err
		}
		// the system message is kept even when this goes negative
		remaining -= cost
	}

	// walk backward, newest first
	firstKept := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost, err := s.cost(rest[i])
		if err != nil {
			return nil, err
		}
		if cost > remaining && firstKept < len(rest) {
			break
		}
		remaining -= cost
		firstKept = i
	}

	kept := rest[firstKept:]
	dropped := rest[:firstKept]

	window := make(conversation.Conversation, 0, len(kept)+2)
	if system != nil {
		window = append(window, system)
	}

	if len(dropped) > 0 {
		if s.summarizer != nil {
			summary, err := s.summarizer.Summarize(ctx, dropped)
			if err != nil {
				return nil, errors.Wrap(err, "summarizing dropped context")
			}
			window = append(window, conversation.NewMessage(conversation.RoleSystem, summary))
		} else {
			log.Debug().
				Int("dropped", len(dropped)).
				Int("budget", budget).
				Msg("truncated context without summarizer, dropping prefix")
		}
	}

	window = append(window, kept...)
	return window, nil
}

func (s *Selector) cost(msg *conversation.Message) (int, error) {
	n, err := s.counter.Count(msg.Content)
	if err != nil {
		return 0, errors.Wrap(err, "counting tokens")
	}
	return n + messageOverhead, nil
}
