// Package pipeline turns a released batch of chat messages into validated,
// typed vehicle actions.
//
// Four stages run in order — filter, refine, categorize, extract — each one
// an instruction-driven call to the text-transformation model, each output
// validated against a permissive schema. A failing stage degrades to its
// empty (or for refine, identity) result; the batch is never aborted.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stocklens/yardbot/internal/anthropic"
	"github.com/stocklens/yardbot/internal/batch"
)

// Completer is the text-transformation capability consumed by every stage.
// *anthropic.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// Config controls stage calls.
type Config struct {
	StageTimeout       time.Duration // per external call
	ExtractConcurrency int           // parallel category extractions
	MaxTokens          int           // response budget per call
}

// DefaultConfig returns production stage settings.
func DefaultConfig() Config {
	return Config{
		StageTimeout:       90 * time.Second,
		ExtractConcurrency: 4,
		MaxTokens:          4096,
	}
}

// Pipeline executes the extraction stages for one batch at a time.
type Pipeline struct {
	llm    Completer
	logger *slog.Logger
	cfg    Config
}

// New creates a pipeline. Zero-valued config fields take defaults.
func New(llm Completer, logger *slog.Logger, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = def.StageTimeout
	}
	if cfg.ExtractConcurrency <= 0 {
		cfg.ExtractConcurrency = def.ExtractConcurrency
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Pipeline{llm: llm, logger: logger, cfg: cfg}
}

// Run processes one released batch and returns whatever actions could be
// extracted. It never returns an error for external-call failures; those
// degrade per stage and are logged.
func (p *Pipeline) Run(ctx context.Context, msgs []batch.Message) []Action {
	if len(msgs) == 0 {
		return nil
	}

	lines := make([]Line, 0, len(msgs))
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		lines = append(lines, Line{Speaker: m.Speaker, Text: m.Text})
	}

	// Stage 1: filter. Empty on failure — nothing actionable survives.
	filtered := p.lineStage(ctx, "filter", filterSystemPrompt, lines)
	if len(filtered) == 0 {
		p.logger.Info("no actionable lines after filter", "input_lines", len(lines))
		return nil
	}

	// Stage 2: refine. Neutral on failure — lines pass through unrefined.
	refined := p.lineStage(ctx, "refine", refineSystemPrompt, filtered)
	if len(refined) == 0 {
		p.logger.Warn("refine stage produced nothing, using filtered lines")
		refined = filtered
	}

	// Stage 3: categorize, then expand with the duplication rules.
	categorized := p.categorizeStage(ctx, refined)
	if len(categorized) == 0 {
		p.logger.Info("no categorized lines", "refined_lines", len(refined))
		return nil
	}
	categorized = expandCategories(categorized)

	// Stage 4: per-category extraction, concurrent under a small cap.
	actions := p.extractStage(ctx, groupByCategory(categorized))

	for i := range actions {
		NormalizeRego(&actions[i])
	}

	p.logger.Info("pipeline complete",
		"input_lines", len(lines),
		"filtered", len(filtered),
		"categorized", len(categorized),
		"actions", len(actions),
	)
	return actions
}

// lineStage runs a filter or refine call and decodes its line list.
func (p *Pipeline) lineStage(ctx context.Context, stage, system string, in []Line) []Line {
	raw, err := p.complete(ctx, system, in)
	if err != nil {
		p.logger.Warn("stage call failed", "stage", stage, "error", err)
		return nil
	}
	return decodeLines(raw)
}

func (p *Pipeline) categorizeStage(ctx context.Context, in []Line) []CategorizedLine {
	raw, err := p.complete(ctx, categorizeSystemPrompt, in)
	if err != nil {
		p.logger.Warn("stage call failed", "stage", "categorize", "error", err)
		return nil
	}
	return decodeCategorized(raw)
}

// extractStage issues one structured-extraction call per non-empty category.
// Calls are independent, so they run concurrently bounded by the configured
// cap; results append under a mutex.
func (p *Pipeline) extractStage(ctx context.Context, groups map[ActionType][]Line) []Action {
	var (
		mu      sync.Mutex
		actions []Action
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, p.cfg.ExtractConcurrency)

	for _, typ := range AllTypes() {
		group := groups[typ]
		if len(group) == 0 {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(typ ActionType, group []Line) {
			defer wg.Done()
			defer func() { <-sem }()

			raw, err := p.complete(ctx, categoryPrompts[typ], group)
			if err != nil {
				p.logger.Warn("category extraction failed", "category", typ, "error", err)
				return
			}
			extracted := decodeActions(raw, typ)
			if len(extracted) == 0 {
				return
			}
			mu.Lock()
			actions = append(actions, extracted...)
			mu.Unlock()
		}(typ, group)
	}
	wg.Wait()
	return actions
}

// complete issues one model call with the stage timeout, feeding the input
// lines as a JSON document.
func (p *Pipeline) complete(ctx context.Context, system string, in []Line) (string, error) {
	payload, err := json.Marshal(lineList{Lines: in})
	if err != nil {
		return "", fmt.Errorf("marshal stage input: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	return p.llm.Complete(cctx, system, []anthropic.Message{
		{Role: "user", Content: fmt.Sprintf(stageUserPrompt, string(payload))},
	}, p.cfg.MaxTokens)
}
