package openai

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/storyteller/pkg/inference/engine"
)

// classifyError maps go-openai failures onto the engine error taxonomy.
// Context cancellation and deadline errors pass through untouched so the
// replay controller can tell an abort from a provider failure.
func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &engine.RateLimitError{Err: err}
		}
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return &engine.ModelError{Code: code, Err: err}
	}

	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &engine.RateLimitError{Err: err}
		}
		return &engine.ModelError{Err: err}
	}

	// anything else never made it to the provider
	return &engine.TransportError{Err: err}
}
