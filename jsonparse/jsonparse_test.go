package jsonparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var fusionKeys = []string{"probability", "rationale", "decision"}

func TestExtractStrict(t *testing.T) {
	res := Extract(`{"probability": 0.81, "rationale": "vitals trending down"}`, fusionKeys, nil)
	require.Equal(t, TierStrict, res.Tier)
	require.False(t, res.Degraded)

	p, ok := res.Float("probability")
	require.True(t, ok)
	require.Equal(t, 0.81, p)

	r, ok := res.String("rationale")
	require.True(t, ok)
	require.Equal(t, "vitals trending down", r)
}

func TestExtractEmbeddedObject(t *testing.T) {
	text := `Sure, here is my assessment: {"probability": 0.81, "rationale": "stable"} hope that helps`
	res := Extract(text, fusionKeys, nil)
	require.True(t, res.Tier == TierBraces || res.Tier == TierPattern)
	require.True(t, res.Degraded)

	p, ok := res.Float("probability")
	require.True(t, ok)
	require.Equal(t, 0.81, p)
}

func TestExtractCodeFence(t *testing.T) {
	text := "```json\n{\"probability\": 0.4, \"rationale\": \"mild symptoms\"}\n```"
	res := Extract(text, fusionKeys, nil)
	require.Equal(t, TierBraces, res.Tier)

	p, ok := res.Float("probability")
	require.True(t, ok)
	require.Equal(t, 0.4, p)
}

func TestExtractTrailingCommaRepair(t *testing.T) {
	res := Extract(`{"probability": 0.62, "rationale": "borderline",}`, fusionKeys, nil)
	require.Equal(t, TierBraces, res.Tier)

	p, ok := res.Float("probability")
	require.True(t, ok)
	require.Equal(t, 0.62, p)
}

func TestExtractPatternTier(t *testing.T) {
	res := Extract(`the model says probability: 0.62 with "rationale": "elevated heart rate"`, fusionKeys, nil)
	require.Equal(t, TierPattern, res.Tier)
	require.True(t, res.Degraded)

	p, ok := res.Float("probability")
	require.True(t, ok)
	require.Equal(t, 0.62, p)

	r, ok := res.String("rationale")
	require.True(t, ok)
	require.Equal(t, "elevated heart rate", r)
}

func TestExtractDefaultTier(t *testing.T) {
	res := Extract("no structure at all", fusionKeys, map[string]any{"probability": 0.5})
	require.Equal(t, TierDefault, res.Tier)
	require.True(t, res.Degraded)

	p, ok := res.Float("probability")
	require.True(t, ok)
	require.Equal(t, 0.5, p)
}

// A well-formed object must yield the same fields regardless of tier.
func TestStrictAndPatternAgree(t *testing.T) {
	text := `{"probability": 0.73, "decision": "Admit"}`
	strict := Extract(text, fusionKeys, nil)
	pattern := patternFields(text, fusionKeys)

	sp, _ := strict.Float("probability")
	require.Equal(t, sp, pattern["probability"])
	sd, _ := strict.String("decision")
	require.Equal(t, sd, pattern["decision"])
}

func TestExtractNeverPanicsOnGarbage(t *testing.T) {
	for _, text := range []string{"", "{", `{"a":`, "}{", `{"a": "\"}`, "probability:"} {
		res := Extract(text, fusionKeys, map[string]any{"probability": 0.1})
		require.NotNil(t, res.Fields)
	}
}
