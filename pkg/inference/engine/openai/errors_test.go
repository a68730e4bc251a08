package openai

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/storyteller/pkg/inference/engine"
)

func TestClassifyRateLimit(t *testing.T) {
	err := classifyError(context.Background(), &go_openai.APIError{
		HTTPStatusCode: http.StatusTooManyRequests,
		Message:        "rate limit exceeded",
	})

	var rateLimited *engine.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
}

func TestClassifyAPIErrorAsModelError(t *testing.T) {
	err := classifyError(context.Background(), &go_openai.APIError{
		HTTPStatusCode: http.StatusBadRequest,
		Code:           "context_length_exceeded",
		Message:        "too many tokens",
	})

	var modelErr *engine.ModelError
	require.ErrorAs(t, err, &modelErr)
	require.Equal(t, "context_length_exceeded", modelErr.Code)
}

func TestClassifyNetworkFailureAsTransport(t *testing.T) {
	err := classifyError(context.Background(), errors.New("dial tcp: connection refused"))

	var transportErr *engine.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestClassifyPassesThroughCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classifyError(ctx, errors.New("request aborted"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMessageConversionPreservesOrderAndRoles(t *testing.T) {
	msgs := makeTestConversation()

	converted := toOpenAIMessages(msgs)
	require.Len(t, converted, 3)
	require.Equal(t, go_openai.ChatMessageRoleSystem, converted[0].Role)
	require.Equal(t, go_openai.ChatMessageRoleUser, converted[1].Role)
	require.Equal(t, go_openai.ChatMessageRoleAssistant, converted[2].Role)
	require.Equal(t, "Hi", converted[1].Content)
}
