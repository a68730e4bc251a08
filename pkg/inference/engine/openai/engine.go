package openai

import (
	"context"

	go_openai "github.com/sashabaranov/go-openai"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/storyteller/pkg/conversation"
	"github.com/go-go-golems/storyteller/pkg/inference/engine"
	"github.com/go-go-golems/storyteller/pkg/settings"
)

// OpenAIEngine implements the model collaborator against the OpenAI chat
// completions API (and compatible endpoints via a custom base URL).
type OpenAIEngine struct {
	settings *settings.StepSettings
}

var _ engine.Engine = (*OpenAIEngine)(nil)

func NewEngine(stepSettings *settings.StepSettings) (*OpenAIEngine, error) {
	if stepSettings == nil {
		return nil, errors.New("settings cannot be nil")
	}
	if stepSettings.Chat == nil || stepSettings.Chat.ApiType == nil {
		return nil, errors.New("no chat api type specified")
	}
	return &OpenAIEngine{settings: stepSettings}, nil
}

func (e *OpenAIEngine) Complete(ctx context.Context, messages conversation.Conversation) (string, error) {
	client, err := makeClient(e.settings.API, *e.settings.Chat.ApiType)
	if err != nil {
		return "", err
	}

	req := makeCompletionRequest(e.settings.Chat, messages)

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Msg("sending completion request")

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", &engine.ModelError{Err: errors.New("response contained no choices")}
	}

	return resp.Choices[0].Message.Content, nil
}

func makeClient(apiSettings *settings.APISettings, apiType string) (*go_openai.Client, error) {
	apiKey, ok := apiSettings.APIKeys[apiType+"-api-key"]
	if !ok || apiKey == "" {
		return nil, errors.Errorf("no API key for %s", apiType)
	}

	config := go_openai.DefaultConfig(apiKey)
	if baseURL, ok := apiSettings.BaseUrls[apiType+"-base-url"]; ok && baseURL != "" {
		config.BaseURL = baseURL
	}

	return go_openai.NewClientWithConfig(config), nil
}

func makeCompletionRequest(chat *settings.ChatSettings, messages conversation.Conversation) go_openai.ChatCompletionRequest {
	req := go_openai.ChatCompletionRequest{
		Messages: toOpenAIMessages(messages),
		Stop:     chat.Stop,
	}
	if chat.Engine != nil {
		req.Model = *chat.Engine
	}
	if chat.Temperature != nil {
		req.Temperature = float32(*chat.Temperature)
	}
	if chat.TopP != nil {
		req.TopP = float32(*chat.TopP)
	}
	if chat.MaxResponseTokens != nil {
		req.MaxTokens = *chat.MaxResponseTokens
	}
	return req
}

func toOpenAIMessages(messages conversation.Conversation) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    toOpenAIRole(msg.Role),
			Content: msg.Content,
		})
	}
	return ret
}

func toOpenAIRole(role conversation.Role) string {
	switch role {
	case conversation.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	case conversation.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	case conversation.RoleUser:
		return go_openai.ChatMessageRoleUser
	default:
		return go_openai.ChatMessageRoleUser
	}
}
