package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deepnoodle-ai/triage"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	r := New()
	require.Equal(t, "openai", r.Name())
	require.Equal(t, string(DefaultModel), r.ModelName())

	custom := New(WithModel("gpt-4o-mini"), WithMaxTokens(256))
	require.Equal(t, "gpt-4o-mini", custom.ModelName())
	require.Equal(t, 256, custom.settings.maxTokens)
}

func TestPredictText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-2",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {
					"role": "assistant",
					"content": "{\"probability\": 0.8, \"label\": \"high_risk\"}"
				}
			}]
		}`)
	}))
	defer server.Close()

	p := NewTextPredictor(WithAPIKey("test-key"), WithEndpoint(server.URL))
	pred, err := p.PredictText(context.Background(), "crushing chest pain radiating to left arm")
	require.NoError(t, err)
	require.Equal(t, 0.8, pred.Probability)
	require.Equal(t, "high_risk", pred.Label)
	require.NotEmpty(t, pred.Raw)

	// An empty note never hits the API
	neutral, err := p.PredictText(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 0.5, neutral.Probability)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{
			name:      "rate limited",
			err:       &openai.Error{StatusCode: 429},
			transient: true,
		},
		{
			name:      "server error",
			err:       &openai.Error{StatusCode: 503},
			transient: true,
		},
		{
			name:  "unauthorized",
			err:   &openai.Error{StatusCode: 401},
			fatal: true,
		},
		{
			name:  "bad request",
			err:   &openai.Error{StatusCode: 400},
			fatal: true,
		},
		{
			name:      "connection failure",
			err:       fmt.Errorf("dial tcp: connection refused"),
			transient: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			classified := classifyError(tc.err)
			require.Equal(t, tc.transient, triage.IsTransient(classified))
			require.Equal(t, tc.fatal, triage.IsFatal(classified))
		})
	}

	cancelled := classifyError(context.Canceled)
	require.False(t, triage.IsTransient(cancelled))
	require.False(t, triage.IsFatal(cancelled))
}

func TestFuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {
					"role": "assistant",
					"content": "{\"admission_probability\": 0.62, \"rationale\": \"signals lean toward admission\"}"
				}
			}]
		}`)
	}))
	defer server.Close()

	r := New(WithAPIKey("test-key"), WithEndpoint(server.URL))
	raw, err := r.Fuse(context.Background(), triage.FusionInput{
		StructuredProbability: triage.Float64(0.7),
		TextProbability:       triage.Float64(0.5),
	})
	require.NoError(t, err)
	require.Contains(t, raw, "admission_probability")
	require.Contains(t, raw, "0.62")
}

func TestFuseServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := New(WithAPIKey("test-key"), WithEndpoint(server.URL), WithMaxRetries(0))
	_, err := r.Fuse(context.Background(), triage.FusionInput{
		StructuredProbability: triage.Float64(0.7),
	})
	require.Error(t, err)
	require.True(t, triage.IsTransient(err))
}
