package core

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// verdictPayload is the JSON object the model is asked to return
type verdictPayload struct {
	PhishingScore  *float64 `json:"phishing_score"`
	Classification string   `json:"classification"`
	Reasoning      string   `json:"reasoning"`
}

// ParseResponse converts raw model output into an AnalysisResult.
// Output that is not a JSON verdict becomes an unstructured result which is
// then upgraded at most once.
func ParseResponse(text string) *AnalysisResult {
	text = strings.TrimSpace(text)
	if v, ok := parseVerdict(text); ok {
		return NewStructuredResult(v)
	}
	return NewUnstructuredResult(text).Upgrade()
}

// Upgrade tries to recover a verdict embedded in unstructured text, first from
// a ```json fenced block and then from the outermost braces. The receiver is
// returned unchanged when neither yields a verdict.
func (r *AnalysisResult) Upgrade() *AnalysisResult {
	if r == nil || r.IsStructured() {
		return r
	}

	for _, candidate := range embeddedJSONCandidates(r.RawText) {
		if v, ok := parseVerdict(candidate); ok {
			upgraded := *r
			upgraded.Kind = ResultStructured
			upgraded.Verdict = &v
			upgraded.RawText = ""
			return &upgraded
		}
	}
	return r
}

func embeddedJSONCandidates(text string) []string {
	var candidates []string
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	return candidates
}

func parseVerdict(text string) (Verdict, bool) {
	var payload verdictPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Verdict{}, false
	}
	if payload.PhishingScore == nil {
		return Verdict{}, false
	}
	score := clampScore(*payload.PhishingScore)

	classification := Classification(strings.ToLower(strings.TrimSpace(payload.Classification)))
	if !classification.Valid() {
		classification = ClassificationForScore(score)
	}

	return Verdict{
		Score:          score,
		Classification: classification,
		Reasoning:      strings.TrimSpace(payload.Reasoning),
	}, true
}

// clampScore bounds score to 0..100 before converting, so values outside the
// int range cannot wrap
func clampScore(score float64) int {
	if score >= 100 {
		return 100
	}
	if !(score > 0) {
		return 0
	}
	return int(math.Round(score))
}
