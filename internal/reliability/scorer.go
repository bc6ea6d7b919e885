// Package reliability tracks how trustworthy extraction is per action type,
// based on audit verdicts. Scores start at a neutral 0.5 and move with each
// audited action; operators read them off the status endpoint to see which
// categories need prompt work.
package reliability

import (
	"sync"

	"github.com/stocklens/yardbot/internal/audit"
	"github.com/stocklens/yardbot/internal/pipeline"
)

const (
	initialScore  = 0.5
	correctWeight = 0.02
	partialWeight = 0.01
)

// verdictDelta maps an audit verdict to a score change. Wrong extractions
// degrade the score twice as fast as correct ones repair it; UNSURE carries
// no signal.
func verdictDelta(v audit.Verdict) float64 {
	switch v {
	case audit.VerdictCorrect:
		return correctWeight
	case audit.VerdictPartial:
		return -partialWeight
	case audit.VerdictIncorrect:
		return -correctWeight * 2.0
	default:
		return 0
	}
}

// Tracker accumulates per-type scores. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	scores map[pipeline.ActionType]float64
	counts map[pipeline.ActionType]int
}

func NewTracker() *Tracker {
	return &Tracker{
		scores: make(map[pipeline.ActionType]float64),
		counts: make(map[pipeline.ActionType]int),
	}
}

// Record applies one audited batch. Verdicts index into actions the way the
// audit pass returns them.
func (t *Tracker) Record(actions []pipeline.Action, verdicts []audit.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, v := range verdicts {
		if i >= len(actions) {
			break
		}
		typ := actions[i].Type
		score, ok := t.scores[typ]
		if !ok {
			score = initialScore
		}
		t.scores[typ] = clamp(score + verdictDelta(v.Verdict))
		t.counts[typ]++
	}
}

// TypeScore is one action type's running reliability.
type TypeScore struct {
	Type    pipeline.ActionType `json:"type"`
	Score   float64             `json:"score"`
	Audited int                 `json:"audited"`
}

// Snapshot returns scores for every type seen so far, in AllTypes order.
func (t *Tracker) Snapshot() []TypeScore {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TypeScore
	for _, typ := range pipeline.AllTypes() {
		if n, ok := t.counts[typ]; ok {
			out = append(out, TypeScore{Type: typ, Score: t.scores[typ], Audited: n})
		}
	}
	return out
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
