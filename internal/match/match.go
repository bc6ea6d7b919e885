// Package match scores the similarity of two short alphanumeric codes.
//
// Registration codes arrive hand-typed or OCR'd from photos, so the usual
// failure modes are visually confusable characters (O/0, I/1) and swapped
// adjacent characters. The matcher is a Damerau-Levenshtein distance with
// discounted costs for exactly those two error classes.
package match

import "strings"

// Costs are the per-edit weights used by the distance computation.
type Costs struct {
	Substitute   float64 // ordinary character substitution
	Confusable   float64 // substitution within the confusable set
	Transpose    float64 // adjacent character swap
	InsertDelete float64 // insertion or deletion
}

// DefaultCosts reflect field data: confusable swaps are near-free,
// transpositions cheap, everything else full price.
func DefaultCosts() Costs {
	return Costs{
		Substitute:   1.0,
		Confusable:   0.25,
		Transpose:    0.4,
		InsertDelete: 1.0,
	}
}

// DefaultConfusables are character pairs commonly misread during manual
// transcription or OCR. Each pair is applied in both directions.
func DefaultConfusables() []string {
	return []string{"O0", "I1", "B8", "S5", "Z2", "G6"}
}

// Matcher computes weighted edit distances between normalized codes.
type Matcher struct {
	costs      Costs
	confusable map[[2]byte]bool
}

// New builds a matcher from explicit costs and two-character confusable
// pairs. Pairs shorter than two characters are ignored.
func New(costs Costs, pairs []string) *Matcher {
	m := &Matcher{
		costs:      costs,
		confusable: make(map[[2]byte]bool),
	}
	for _, p := range pairs {
		p = strings.ToUpper(p)
		if len(p) < 2 {
			continue
		}
		a, b := p[0], p[1]
		m.confusable[[2]byte{a, b}] = true
		m.confusable[[2]byte{b, a}] = true
	}
	return m
}

// NewDefault builds a matcher with DefaultCosts and DefaultConfusables.
func NewDefault() *Matcher {
	return New(DefaultCosts(), DefaultConfusables())
}

// Normalize uppercases a code and strips everything that is not a letter
// or digit. This is the canonical form stored and compared everywhere.
func Normalize(code string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Distance returns the weighted edit distance between the normalized forms
// of a and b. Identical codes score 0. The result is symmetric because the
// confusable set is stored bidirectionally.
func (m *Matcher) Distance(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return 0
	}

	la, lb := len(a), len(b)
	if la == 0 {
		return float64(lb) * m.costs.InsertDelete
	}
	if lb == 0 {
		return float64(la) * m.costs.InsertDelete
	}

	// Optimal string alignment over (la+1) x (lb+1).
	d := make([][]float64, la+1)
	for i := range d {
		d[i] = make([]float64, lb+1)
		d[i][0] = float64(i) * m.costs.InsertDelete
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = float64(j) * m.costs.InsertDelete
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := d[i-1][j-1] + m.substitutionCost(a[i-1], b[j-1])
			if del := d[i-1][j] + m.costs.InsertDelete; del < cost {
				cost = del
			}
			if ins := d[i][j-1] + m.costs.InsertDelete; ins < cost {
				cost = ins
			}
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if tr := d[i-2][j-2] + m.costs.Transpose; tr < cost {
					cost = tr
				}
			}
			d[i][j] = cost
		}
	}

	return d[la][lb]
}

func (m *Matcher) substitutionCost(x, y byte) float64 {
	if x == y {
		return 0
	}
	if m.confusable[[2]byte{x, y}] {
		return m.costs.Confusable
	}
	return m.costs.Substitute
}
