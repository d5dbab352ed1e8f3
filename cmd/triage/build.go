package main

import (
	"fmt"
	"os"

	"github.com/deepnoodle-ai/triage"
	"github.com/deepnoodle-ai/triage/config"
	"github.com/deepnoodle-ai/triage/patientdb"
	"github.com/deepnoodle-ai/triage/providers/openai"
	"github.com/deepnoodle-ai/triage/providers/static"
	"github.com/deepnoodle-ai/triage/slogger"
	"github.com/deepnoodle-ai/triage/workflow"
)

// buildWorkflow assembles the engine from config and CLI selections. The
// returned cleanup closes the database and trace store.
func buildWorkflow(configPath, dbPath, reasonerName, model string) (*workflow.Workflow, func(), error) {
	cfg, err := config.ParseFile(configPath)
	if err != nil {
		return nil, nil, err
	}

	provider, err := patientdb.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	cleanup := func() {
		provider.Close()
		closeStore()
	}

	text, fusion, err := buildModelAdapters(reasonerName, model)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	w, err := workflow.New(workflow.Options{
		Config:     *cfg,
		Provider:   provider,
		Structured: static.NewStructuredPredictor(),
		Text:       text,
		Fusion:     fusion,
		Store:      store,
		Logger:     slogger.New(slogger.LevelFromString(cfg.LogLevel)),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return w, cleanup, nil
}

// buildModelAdapters selects the text predictor and fusion reasoner. The
// openai backend serves both; the structured predictor is always local.
func buildModelAdapters(name, model string) (triage.TextPredictor, triage.FusionReasoner, error) {
	switch name {
	case "static", "":
		return static.NewTextPredictor(), static.NewReasoner(static.ReasonerOptions{}), nil
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, nil, fmt.Errorf("openai reasoner requires OPENAI_API_KEY")
		}
		var opts []openai.Option
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		return openai.NewTextPredictor(opts...), openai.New(opts...), nil
	default:
		return nil, nil, fmt.Errorf("unknown reasoner %q", name)
	}
}

func buildStore(cfg *config.Config) (workflow.TraceStore, func(), error) {
	switch cfg.Trace.Backend {
	case config.TraceBackendFile:
		return workflow.NewFileTraceStore(cfg.Trace.Path), func() {}, nil
	case config.TraceBackendSQLite:
		store, err := workflow.NewSQLiteTraceStore(cfg.Trace.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case config.TraceBackendNone, "":
		return workflow.NewNullTraceStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown trace backend %q", cfg.Trace.Backend)
	}
}
