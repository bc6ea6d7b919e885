// Package audit is the read-only second pass over extracted actions. For
// each action it asks the model for the minimal verbatim quote that supports
// it and a verdict; the gate then drops actions verdicted INCORRECT.
//
// This is a precision-biased safety valve against hallucinated structured
// output, not a correctness prover.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stocklens/yardbot/internal/anthropic"
	"github.com/stocklens/yardbot/internal/pipeline"
)

// Verdict classifies how well the source text supports one action.
type Verdict string

const (
	// VerdictCorrect: clearly supported, including implicit but unambiguous
	// signals ("booked with Tony" supports a recon appointment).
	VerdictCorrect Verdict = "CORRECT"
	// VerdictPartial: right vehicle, a secondary attribute missing or fuzzy.
	VerdictPartial Verdict = "PARTIAL"
	// VerdictIncorrect: contradicted, or nothing in the source supports it.
	VerdictIncorrect Verdict = "INCORRECT"
	// VerdictUnsure: plausible but no quotable support.
	VerdictUnsure Verdict = "UNSURE"
)

// Result is the judgment for one action, indexed into the audited list.
type Result struct {
	ActionIndex  int     `json:"actionIndex"`
	Verdict      Verdict `json:"verdict"`
	Reason       string  `json:"reason"`
	EvidenceText string  `json:"evidenceText"`
}

const systemPrompt = `You audit structured actions extracted from a car dealership's group chat. For each action you receive the original chat lines and the action. Find the minimal verbatim quote among the lines that supports the action, then classify:

- CORRECT: clearly supported. Implicit but unambiguous signals count ("booked with Tony" supports a reconditioner appointment).
- PARTIAL: the vehicle is right but a secondary attribute is missing or ambiguous in the source.
- INCORRECT: the source contradicts the action, or no line supports it at all. An appointment inferred from a line that only describes damage, with no booking language, is INCORRECT.
- UNSURE: plausible, but you cannot quote a supporting line.

Be strict: you are the last check against invented actions. When a quote exists, copy it verbatim into evidenceText.

Respond with only this JSON:
{"results": [{"actionIndex": 0, "verdict": "CORRECT", "reason": "short text", "evidenceText": "verbatim quote or empty"}]}`

const userPrompt = `Original chat lines:
%s

Extracted actions (by index):
%s

Audit every action. Return ONLY the JSON object, no markdown fences or other text.`

// Engine issues the audit calls.
type Engine struct {
	llm       pipeline.Completer
	logger    *slog.Logger
	timeout   time.Duration
	maxTokens int
}

// New creates an audit engine sharing the pipeline's model client.
func New(llm pipeline.Completer, logger *slog.Logger) *Engine {
	return &Engine{
		llm:       llm,
		logger:    logger,
		timeout:   90 * time.Second,
		maxTokens: 4096,
	}
}

// Audit judges every action against the source lines. A failed or
// unparseable call degrades to an all-UNSURE result set so the gate passes
// everything through — an audit outage must never drop valid work.
func (e *Engine) Audit(ctx context.Context, sourceLines []pipeline.Line, actions []pipeline.Action) []Result {
	if len(actions) == 0 {
		return nil
	}

	linesJSON, err := json.Marshal(sourceLines)
	if err != nil {
		e.logger.Error("marshal audit source lines", "error", err)
		return unsureAll(actions, "audit input marshal failed")
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		e.logger.Error("marshal audit actions", "error", err)
		return unsureAll(actions, "audit input marshal failed")
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.llm.Complete(cctx, systemPrompt, []anthropic.Message{
		{Role: "user", Content: fmt.Sprintf(userPrompt, string(linesJSON), string(actionsJSON))},
	}, e.maxTokens)
	if err != nil {
		e.logger.Warn("audit call failed", "error", err)
		return unsureAll(actions, "audit call failed")
	}

	return decodeResults(raw, len(actions))
}

type resultList struct {
	Results []Result `json:"results"`
}

// decodeResults parses the audit response and fills gaps: every action index
// gets exactly one result, defaulting to UNSURE when the model skipped it or
// answered outside the verdict enum.
func decodeResults(raw string, actionCount int) []Result {
	byIndex := make(map[int]Result)

	var parsed resultList
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err == nil {
		for _, r := range parsed.Results {
			r.Verdict = Verdict(strings.ToUpper(strings.TrimSpace(string(r.Verdict))))
			switch r.Verdict {
			case VerdictCorrect, VerdictPartial, VerdictIncorrect, VerdictUnsure:
			default:
				r.Verdict = VerdictUnsure
				r.Reason = "unrecognized verdict"
			}
			if r.ActionIndex >= 0 && r.ActionIndex < actionCount {
				byIndex[r.ActionIndex] = r
			}
		}
	}

	out := make([]Result, actionCount)
	for i := 0; i < actionCount; i++ {
		if r, ok := byIndex[i]; ok {
			out[i] = r
			continue
		}
		out[i] = Result{ActionIndex: i, Verdict: VerdictUnsure, Reason: "no audit result returned"}
	}
	return out
}

// Gate removes only the actions verdicted INCORRECT, preserving the order
// of everything else. Results must be positional per the audited list.
func Gate(actions []pipeline.Action, results []Result) []pipeline.Action {
	kept := make([]pipeline.Action, 0, len(actions))
	for i, a := range actions {
		if i < len(results) && results[i].Verdict == VerdictIncorrect {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func unsureAll(actions []pipeline.Action, reason string) []Result {
	out := make([]Result, len(actions))
	for i := range actions {
		out[i] = Result{ActionIndex: i, Verdict: VerdictUnsure, Reason: reason}
	}
	return out
}

// extractJSON trims fences and prose around the outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
