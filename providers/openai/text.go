package openai

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/triage"
	"github.com/deepnoodle-ai/triage/jsonparse"
	"github.com/openai/openai-go"
)

var _ triage.TextPredictor = &TextPredictor{}

const textPrompt = `You are a clinical triage classifier. Given the free-text
triage note for one emergency department visit, estimate the probability that
the visit ends in hospital admission. Respond with a JSON object containing
exactly two fields: "probability" (a number between 0 and 1) and "label"
(either "high_risk" or "low_risk"). Respond with the JSON object only.`

// TextPredictor scores the triage note by prompting a chat model. The model's
// output is parsed tolerantly; an unparseable response yields a neutral
// probability rather than an error.
type TextPredictor struct {
	client   openai.Client
	settings settings
}

func NewTextPredictor(opts ...Option) *TextPredictor {
	s := applyOptions(opts)
	return &TextPredictor{
		client:   openai.NewClient(s.options...),
		settings: s,
	}
}

func (p *TextPredictor) ModelName() string {
	return string(p.settings.model)
}

func (p *TextPredictor) PredictText(ctx context.Context, note string) (triage.Prediction, error) {
	if note == "" {
		return triage.Prediction{Probability: 0.5, Label: "low_risk"}, nil
	}

	raw, err := complete(ctx, p.client, p.settings, textPrompt,
		fmt.Sprintf("Triage note: %s", note))
	if err != nil {
		return triage.Prediction{}, err
	}

	res := jsonparse.Extract(raw, []string{"probability", "label"}, map[string]any{
		"probability": 0.5,
		"label":       "low_risk",
	})
	prob, _ := res.Float("probability")
	label, _ := res.String("label")
	return triage.Prediction{Probability: prob, Label: label, Raw: raw}.Clamp(), nil
}
