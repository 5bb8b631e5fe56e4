// Package app holds the wiring shared by the commands.
package app

import (
	"fmt"
	"os"
	"time"

	"github.com/jwalitptl/physio-outreach/internal/classifier"
	"github.com/jwalitptl/physio-outreach/internal/config"
	"github.com/jwalitptl/physio-outreach/internal/repository"
	"github.com/jwalitptl/physio-outreach/internal/service/outreach"
	"github.com/jwalitptl/physio-outreach/pkg/circuitbreaker"
	"github.com/jwalitptl/physio-outreach/pkg/logger"
	"github.com/jwalitptl/physio-outreach/pkg/metrics"
	"github.com/jwalitptl/physio-outreach/pkg/nlp"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "physio_outreach"

func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Format != "console",
	})
}

// NewSecondaryClassifier returns nil when the LLM check is disabled.
func NewSecondaryClassifier(cfg config.LLMConfig) classifier.SecondaryClassifier {
	if !cfg.Enabled {
		return nil
	}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "llm-classifier",
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
	})
	return classifier.NewOpenAIClassifier(classifier.OpenAIConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}, breaker)
}

// NewOutreachService loads the language resources and builds the scan
// service over opener.
func NewOutreachService(cfg *config.Config, opener repository.Opener, log *logger.Logger, m *metrics.Metrics) (*outreach.Service, error) {
	resources, err := nlp.Load(nlp.Language(cfg.Analysis.Language))
	if err != nil {
		return nil, fmt.Errorf("failed to load language resources: %w", err)
	}

	opts := []outreach.Option{
		outreach.WithLogger(log),
		outreach.WithMetrics(m),
	}
	if secondary := NewSecondaryClassifier(cfg.LLM); secondary != nil {
		log.Info("secondary classifier enabled", "model", cfg.LLM.Model)
		opts = append(opts, outreach.WithSecondary(secondary))
	}

	return outreach.NewService(opener, resources, cfg.Analysis.RecencyWindow, opts...), nil
}
