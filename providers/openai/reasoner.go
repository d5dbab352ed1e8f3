// Package openai implements the text predictor and fusion reasoner contracts
// on the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/triage"
	"github.com/openai/openai-go"
)

var (
	DefaultModel     = openai.ChatModelGPT4o
	DefaultMaxTokens = 1024
)

var _ triage.FusionReasoner = &Reasoner{}

const fusionPrompt = `You are a clinical decision support assistant. You are given
the outputs of two admission classifiers for one emergency department visit,
plus risk features and, when present, a note from a human reviewer. Weigh the
signals and respond with a JSON object containing exactly two fields:
"admission_probability" (a number between 0 and 1) and "rationale" (one or two
sentences). Respond with the JSON object only.`

// Reasoner synthesizes the classifier signals into a fused admission
// probability by prompting a chat model. Its raw output is returned verbatim;
// the engine parses it tolerantly.
type Reasoner struct {
	client   openai.Client
	settings settings
}

func New(opts ...Option) *Reasoner {
	s := applyOptions(opts)
	return &Reasoner{
		client:   openai.NewClient(s.options...),
		settings: s,
	}
}

func (r *Reasoner) Name() string {
	return "openai"
}

func (r *Reasoner) ModelName() string {
	return string(r.settings.model)
}

func (r *Reasoner) Fuse(ctx context.Context, input triage.FusionInput) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", triage.NewFatalError(fmt.Errorf("failed to encode fusion input: %w", err))
	}
	return complete(ctx, r.client, r.settings, fusionPrompt, string(payload))
}

// complete issues one chat completion and returns the raw assistant text.
func complete(ctx context.Context, client openai.Client, s settings, system, user string) (string, error) {
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(s.maxTokens)),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return "", triage.NewTransientError(fmt.Errorf("empty completion response"))
	}
	return completion.Choices[0].Message.Content, nil
}

// classifyError maps API failures onto the engine's transient/fatal taxonomy.
// Rate limits and server errors are retryable; auth and request errors are
// not. Connection-level failures carry no status and are treated transient.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 || apierr.StatusCode >= 500 {
			return triage.NewTransientError(err)
		}
		return triage.NewFatalError(err)
	}
	return triage.NewTransientError(err)
}
