package settings

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ChatSettings configures a single model invocation.
type ChatSettings struct {
	Engine            *string  `yaml:"engine,omitempty"`
	ApiType           *string  `yaml:"api_type,omitempty"`
	MaxResponseTokens *int     `yaml:"max_response_tokens,omitempty"`
	TopP              *float64 `yaml:"top_p,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	Stop              []string `yaml:"stop,omitempty"`

	// context window settings
	ContextBudget int    `yaml:"context_budget,omitempty"`
	TokenEncoding string `yaml:"token_encoding,omitempty"`
	Summarize     bool   `yaml:"summarize,omitempty"`
}

// APISettings carries credentials and endpoints, keyed by api type the same
// way profiles spell them ("openai-api-key", "openai-base-url").
type APISettings struct {
	APIKeys  map[string]string `yaml:"api_keys,omitempty"`
	BaseUrls map[string]string `yaml:"base_urls,omitempty"`
}

// StepSettings bundles everything a replay needs to reach a model.
type StepSettings struct {
	API  *APISettings  `yaml:"api,omitempty"`
	Chat *ChatSettings `yaml:"chat,omitempty"`
}

const (
	DefaultEngine        = "gpt-4o-mini"
	DefaultApiType       = "openai"
	DefaultContextBudget = 8192
	DefaultTokenEncoding = "cl100k_base"
)

func NewStepSettings() *StepSettings {
	engine := DefaultEngine
	apiType := DefaultApiType
	return &StepSettings{
		API: &APISettings{
			APIKeys:  map[string]string{},
			BaseUrls: map[string]string{},
		},
		Chat: &ChatSettings{
			Engine:        &engine,
			ApiType:       &apiType,
			Stop:          []string{},
			ContextBudget: DefaultContextBudget,
			TokenEncoding: DefaultTokenEncoding,
		},
	}
}

// NewStepSettingsFromYAML overlays a yaml profile on top of the defaults.
func NewStepSettingsFromYAML(data []byte) (*StepSettings, error) {
	ret := NewStepSettings()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, errors.Wrap(err, "could not parse settings profile")
	}
	return ret, nil
}

func NewStepSettingsFromFile(path string) (*StepSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read settings profile %s", path)
	}
	return NewStepSettingsFromYAML(data)
}

// Clone returns a deep copy so per-replay overrides never leak back into the
// shared profile.
func (s *StepSettings) Clone() *StepSettings {
	ret := NewStepSettings()

	if s.API != nil {
		for k, v := range s.API.APIKeys {
			ret.API.APIKeys[k] = v
		}
		for k, v := range s.API.BaseUrls {
			ret.API.BaseUrls[k] = v
		}
	}

	if s.Chat != nil {
		c := *s.Chat
		c.Stop = append([]string{}, s.Chat.Stop...)
		if s.Chat.Engine != nil {
			engine := *s.Chat.Engine
			c.Engine = &engine
		}
		if s.Chat.ApiType != nil {
			apiType := *s.Chat.ApiType
			c.ApiType = &apiType
		}
		if s.Chat.MaxResponseTokens != nil {
			v := *s.Chat.MaxResponseTokens
			c.MaxResponseTokens = &v
		}
		if s.Chat.Temperature != nil {
			v := *s.Chat.Temperature
			c.Temperature = &v
		}
		if s.Chat.TopP != nil {
			v := *s.Chat.TopP
			c.TopP = &v
		}
		ret.Chat = &c
	}

	return ret
}
