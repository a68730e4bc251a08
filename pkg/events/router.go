package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// EventHandler is the narrow interface a display collaborator implements to
// receive engine notifications. The engine never learns anything about how
// the events are rendered.
type EventHandler interface {
	HandleConversationChanged(ctx context.Context, e *EventConversationChanged) error
	HandleReplay(ctx context.Context, e *EventReplay) error
}

// EventRouter wires an in-process gochannel pub/sub between the engine's
// PublisherManager and subscribed handlers.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	return ret, nil
}

// AddHandler registers a raw watermill handler on a topic.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// RegisterEventHandler parses incoming payloads and dispatches them to the
// given EventHandler. A payload that fails to parse is logged and dropped
// rather than killing the handler.
func (e *EventRouter) RegisterEventHandler(name string, topic string, handler EventHandler) {
	e.AddHandler(name, topic, func(msg *message.Message) error {
		ev, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("failed to parse event payload")
			return nil
		}

		ctx := msg.Context()
		switch ev := ev.(type) {
		case *EventConversationChanged:
			return handler.HandleConversationChanged(ctx, ev)
		case *EventReplay:
			return handler.HandleReplay(ctx, ev)
		default:
			return nil
		}
	})
}

// Run blocks until ctx is cancelled or the router shuts down.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

// Running returns a channel that is closed once the router has started all
// its handlers, so publishers can wait before emitting.
func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("closing event router publisher")
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close pubsub")
		// not returning just yet, the router still needs closing
	}
	return e.router.Close()
}
