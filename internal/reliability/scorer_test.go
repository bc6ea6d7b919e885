package reliability

import (
	"math"
	"testing"

	"github.com/stocklens/yardbot/internal/audit"
	"github.com/stocklens/yardbot/internal/pipeline"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func record(t *Tracker, typ pipeline.ActionType, v audit.Verdict) {
	t.Record(
		[]pipeline.Action{{Type: typ}},
		[]audit.Result{{ActionIndex: 0, Verdict: v}},
	)
}

func scoreOf(t *testing.T, tr *Tracker, typ pipeline.ActionType) TypeScore {
	t.Helper()
	for _, s := range tr.Snapshot() {
		if s.Type == typ {
			return s
		}
	}
	t.Fatalf("no score recorded for %s", typ)
	return TypeScore{}
}

func TestCorrectRaisesFromNeutral(t *testing.T) {
	tr := NewTracker()
	record(tr, pipeline.TypeLocationUpdate, audit.VerdictCorrect)

	s := scoreOf(t, tr, pipeline.TypeLocationUpdate)
	if !near(s.Score, 0.52) {
		t.Errorf("score = %v, want 0.52", s.Score)
	}
	if s.Audited != 1 {
		t.Errorf("audited = %d, want 1", s.Audited)
	}
}

func TestIncorrectDegradesTwiceAsFast(t *testing.T) {
	tr := NewTracker()
	record(tr, pipeline.TypeSold, audit.VerdictCorrect)
	record(tr, pipeline.TypeSold, audit.VerdictIncorrect)

	// +0.02 then -0.04: one wrong answer undoes two right ones.
	if s := scoreOf(t, tr, pipeline.TypeSold); !near(s.Score, 0.48) {
		t.Errorf("score = %v, want 0.48", s.Score)
	}
}

func TestUnsureCarriesNoSignal(t *testing.T) {
	tr := NewTracker()
	record(tr, pipeline.TypeTask, audit.VerdictUnsure)

	s := scoreOf(t, tr, pipeline.TypeTask)
	if s.Score != 0.5 {
		t.Errorf("score = %v, want unchanged 0.5", s.Score)
	}
	if s.Audited != 1 {
		t.Errorf("audited = %d, UNSURE still counts as audited", s.Audited)
	}
}

func TestScoreClamped(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 50; i++ {
		record(tr, pipeline.TypeReady, audit.VerdictIncorrect)
	}
	if s := scoreOf(t, tr, pipeline.TypeReady); s.Score != 0 {
		t.Errorf("score = %v, want clamped to 0", s.Score)
	}
}

func TestSnapshotOnlySeenTypes(t *testing.T) {
	tr := NewTracker()
	record(tr, pipeline.TypeRepair, audit.VerdictPartial)

	snap := tr.Snapshot()
	if len(snap) != 1 || snap[0].Type != pipeline.TypeRepair {
		t.Errorf("snapshot = %+v, want only REPAIR", snap)
	}
}

func TestRecordIgnoresExtraVerdicts(t *testing.T) {
	tr := NewTracker()
	tr.Record(
		[]pipeline.Action{{Type: pipeline.TypeDropOff}},
		[]audit.Result{
			{ActionIndex: 0, Verdict: audit.VerdictCorrect},
			{ActionIndex: 1, Verdict: audit.VerdictCorrect},
		},
	)
	if s := scoreOf(t, tr, pipeline.TypeDropOff); s.Audited != 1 {
		t.Errorf("audited = %d, want 1", s.Audited)
	}
}
