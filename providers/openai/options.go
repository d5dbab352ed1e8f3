package openai

import (
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type settings struct {
	model     openai.ChatModel
	maxTokens int
	options   []option.RequestOption
}

// Option configures a Reasoner or TextPredictor
type Option func(*settings)

func WithAPIKey(apiKey string) Option {
	return func(s *settings) {
		s.options = append(s.options, option.WithAPIKey(apiKey))
	}
}

func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		s.options = append(s.options, option.WithBaseURL(endpoint))
	}
}

func WithClient(client *http.Client) Option {
	return func(s *settings) {
		s.options = append(s.options, option.WithHTTPClient(client))
	}
}

func WithModel(model string) Option {
	return func(s *settings) {
		s.model = model
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(s *settings) {
		s.maxTokens = maxTokens
	}
}

func WithMaxRetries(maxRetries int) Option {
	return func(s *settings) {
		s.options = append(s.options, option.WithMaxRetries(maxRetries))
	}
}

func applyOptions(opts []Option) settings {
	s := settings{
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
