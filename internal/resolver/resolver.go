// Package resolver decides which tracked vehicle a noisy registration code
// refers to, or whether it refers to none of them.
//
// Resolution is two-tier: an exact lookup on the normalized code first, then
// weighted fuzzy scoring against only those vehicles whose make and model
// match the supplied hints. Fuzzy matching is never allowed to roam across
// the whole directory — a close string match against the wrong make would
// silently corrupt an unrelated vehicle's record.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/stocklens/yardbot/internal/match"
)

// Decision is the resolver's verdict for one code.
type Decision string

const (
	// DecisionExact means an entity with the identical normalized code exists.
	DecisionExact Decision = "exact"
	// DecisionAutoFix means one candidate is close and uniquely confident;
	// the code can be silently corrected to it.
	DecisionAutoFix Decision = "auto-fix"
	// DecisionReview means a plausible candidate exists but confidence or
	// uniqueness is insufficient; a human must confirm.
	DecisionReview Decision = "review"
	// DecisionReject means no candidate is close enough to bind.
	DecisionReject Decision = "reject"
	// DecisionCreate means no candidates exist and the input carries enough
	// identification to register a new vehicle.
	DecisionCreate Decision = "create"
)

// Candidate is one directory entry considered during resolution.
type Candidate struct {
	ID    uuid.UUID
	Rego  string
	Make  string
	Model string
}

// Scored pairs a candidate with its distance from the input code.
type Scored struct {
	Candidate Candidate
	Score     float64
}

// Result explains a resolution: the decision plus the best and runner-up
// scores that produced it. Ephemeral; never persisted.
type Result struct {
	Decision  Decision
	Best      *Scored
	Second    *Scored
	AllScores []Scored
}

// Directory is the read surface the resolver needs from the vehicle store.
type Directory interface {
	// FindByRego returns the vehicle with the exact normalized code,
	// or nil when none exists.
	FindByRego(ctx context.Context, rego string) (*Candidate, error)
	// FindByMakeModel returns all vehicles matching make and model,
	// compared case-insensitively.
	FindByMakeModel(ctx context.Context, makeName, model string) ([]Candidate, error)
}

// Config holds the decision thresholds. Zero values are replaced by
// DefaultConfig in New.
type Config struct {
	AutoFixThreshold float64 // max score eligible for auto-fix
	ReviewThreshold  float64 // max score eligible for review
	UniqueMargin     float64 // min gap between best and second for auto-fix
	MinConfidence    float64 // min upstream extraction confidence for auto-fix
}

// DefaultConfig returns the tuned production thresholds.
func DefaultConfig() Config {
	return Config{
		AutoFixThreshold: 0.6,
		ReviewThreshold:  1.2,
		UniqueMargin:     0.2,
		MinConfidence:    0.75,
	}
}

// Resolver binds noisy codes to directory entries.
type Resolver struct {
	dir     Directory
	matcher *match.Matcher
	cfg     Config
}

// New builds a resolver over the given directory. A nil matcher gets the
// default confusable-weighted matcher.
func New(dir Directory, matcher *match.Matcher, cfg Config) *Resolver {
	if matcher == nil {
		matcher = match.NewDefault()
	}
	def := DefaultConfig()
	if cfg.AutoFixThreshold == 0 {
		cfg.AutoFixThreshold = def.AutoFixThreshold
	}
	if cfg.ReviewThreshold == 0 {
		cfg.ReviewThreshold = def.ReviewThreshold
	}
	if cfg.UniqueMargin == 0 {
		cfg.UniqueMargin = def.UniqueMargin
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	return &Resolver{dir: dir, matcher: matcher, cfg: cfg}
}

// Resolve decides what the noisy code refers to. confidence is the upstream
// extraction's certainty in [0,1] and gates auto-fix only.
//
// Calling Resolve with neither a code nor make+model hints is a contract
// error and returns a descriptive error rather than a decision.
func (r *Resolver) Resolve(ctx context.Context, codeRaw, makeName, model string, confidence float64) (Result, error) {
	code := match.Normalize(codeRaw)

	if code == "" && (makeName == "" || model == "") {
		return Result{}, fmt.Errorf("resolve: no code and no make/model hints supplied")
	}

	// Exact match short-circuits fuzzy scoring entirely.
	if code != "" {
		found, err := r.dir.FindByRego(ctx, code)
		if err != nil {
			return Result{}, fmt.Errorf("exact lookup for %s: %w", code, err)
		}
		if found != nil {
			s := &Scored{Candidate: *found, Score: 0}
			return Result{Decision: DecisionExact, Best: s, AllScores: []Scored{*s}}, nil
		}
	}

	// Fuzzy scoring only within the make+model slice of the directory.
	var candidates []Candidate
	if makeName != "" && model != "" {
		var err error
		candidates, err = r.dir.FindByMakeModel(ctx, makeName, model)
		if err != nil {
			return Result{}, fmt.Errorf("candidate lookup for %s %s: %w", makeName, model, err)
		}
	}

	if len(candidates) == 0 {
		if code != "" && makeName != "" && model != "" {
			return Result{Decision: DecisionCreate}, nil
		}
		return Result{Decision: DecisionReject}, nil
	}
	if code == "" {
		// Hints alone can narrow the set but never bind a specific vehicle.
		return Result{Decision: DecisionReject}, nil
	}

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, Scored{Candidate: c, Score: r.matcher.Distance(code, c.Rego)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })

	res := Result{Best: &scored[0], AllScores: scored}
	if len(scored) > 1 {
		res.Second = &scored[1]
	}

	res.Decision = r.decide(res.Best, res.Second, confidence)
	return res, nil
}

func (r *Resolver) decide(best, second *Scored, confidence float64) Decision {
	if best.Score == 0 {
		return DecisionExact
	}
	if best.Score <= r.cfg.AutoFixThreshold &&
		(second == nil || second.Score-best.Score >= r.cfg.UniqueMargin) &&
		confidence >= r.cfg.MinConfidence {
		return DecisionAutoFix
	}
	if best.Score <= r.cfg.ReviewThreshold {
		return DecisionReview
	}
	return DecisionReject
}
