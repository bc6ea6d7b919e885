package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/stocklens/yardbot/internal/match"
)

// The stage decoders below are deliberately forgiving. Model output is
// untrusted: fences, stray prose, missing fields and wrong types all coerce
// to the stage's empty value instead of failing the batch.

// stripFences removes a markdown code fence wrapper if present and trims
// surrounding prose down to the outermost JSON object or array.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

type lineList struct {
	Lines []Line `json:"lines"`
}

// decodeLines parses a filter or refine stage response. Malformed input or
// lines with empty text decode to nothing.
func decodeLines(raw string) []Line {
	var parsed lineList
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil
	}
	out := make([]Line, 0, len(parsed.Lines))
	for _, l := range parsed.Lines {
		l.Text = strings.TrimSpace(l.Text)
		if l.Text == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

type categorizedList struct {
	Lines []CategorizedLine `json:"lines"`
}

// decodeCategorized parses the categorize stage response. Lines carrying a
// category outside the fixed enum are dropped rather than guessed at.
func decodeCategorized(raw string) []CategorizedLine {
	var parsed categorizedList
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil
	}
	out := make([]CategorizedLine, 0, len(parsed.Lines))
	for _, l := range parsed.Lines {
		l.Text = strings.TrimSpace(l.Text)
		l.Category = ActionType(strings.ToUpper(strings.TrimSpace(string(l.Category))))
		if l.Text == "" || !ValidType(l.Category) {
			continue
		}
		out = append(out, l)
	}
	return out
}

type actionList struct {
	Actions []Action `json:"actions"`
}

// decodeActions parses a per-category extraction response. Every action is
// stamped with the category it was extracted for, overriding whatever the
// model put in the type field.
func decodeActions(raw string, typ ActionType) []Action {
	var parsed actionList
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil
	}
	out := make([]Action, 0, len(parsed.Actions))
	for _, a := range parsed.Actions {
		a.Type = typ
		if a.Confidence < 0 {
			a.Confidence = 0
		}
		if a.Confidence > 1 {
			a.Confidence = 1
		}
		out = append(out, a)
	}
	return out
}

// NormalizeRego uppercases an action's rego and strips whitespace and
// punctuation. Applied once after all category extractions complete.
func NormalizeRego(a *Action) {
	a.Rego = match.Normalize(a.Rego)
}

// duplicationRules maps a primary category to the extra categories the same
// line must also be emitted under. A repair note both updates a checklist
// and may imply a reconditioner booking; a drop-off implies the vehicle's
// next location.
var duplicationRules = map[ActionType][]ActionType{
	TypeRepair:    {TypeReconAppt},
	TypeReconAppt: {TypeRepair},
	TypeDropOff:   {TypeNextLocation},
}

// expandCategories applies the duplication rules and collapses exact
// (speaker, text, category) duplicates, preserving first-seen order.
func expandCategories(lines []CategorizedLine) []CategorizedLine {
	type key struct {
		speaker, text string
		category      ActionType
	}
	seen := make(map[key]bool)
	var out []CategorizedLine

	add := func(l CategorizedLine) {
		k := key{l.Speaker, l.Text, l.Category}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, l)
	}

	for _, l := range lines {
		add(l)
		for _, extra := range duplicationRules[l.Category] {
			add(CategorizedLine{Speaker: l.Speaker, Text: l.Text, Category: extra})
		}
	}
	return out
}

// groupByCategory buckets lines for per-category extraction. Callers
// iterate the buckets in AllTypes order.
func groupByCategory(lines []CategorizedLine) map[ActionType][]Line {
	groups := make(map[ActionType][]Line)
	for _, l := range lines {
		groups[l.Category] = append(groups[l.Category], Line{Speaker: l.Speaker, Text: l.Text})
	}
	return groups
}
