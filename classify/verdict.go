package classify

import (
	"strconv"
	"strings"
)

// Verdict is the parsed three-field answer from the reasoning service.
type Verdict struct {
	Applies    bool
	Confidence int
	Reasoning  string
}

// DefaultConfidence is assumed when the response carries no parseable
// confidence line.
const DefaultConfidence = 50

// ParseVerdict extracts an applicability verdict from free-form model
// output. The expected layout is
//
//	APPLIES: yes/no
//	CONFIDENCE: 0-100
//	REASONING: explanation, possibly
//	spanning further lines
//
// but parsing tolerates reordered lines, extra whitespace, and missing
// fields. Applies is taken from an affirmative token in the first
// line, confidence defaults to 50, and reasoning keeps every line
// after its marker.
func ParseVerdict(content string) Verdict {
	verdict := Verdict{Confidence: DefaultConfidence}

	lines := strings.Split(strings.TrimSpace(content), "\n")
	verdict.Applies = strings.Contains(strings.ToLower(lines[0]), "yes")

	for i, line := range lines {
		upper := strings.ToUpper(line)
		if strings.Contains(upper, "CONFIDENCE:") {
			verdict.Confidence = parseConfidence(line)
		}
		if strings.Contains(upper, "REASONING:") {
			verdict.Reasoning = parseReasoning(lines[i:])
		}
	}

	return verdict
}

// parseConfidence collects the digits on the line. Out-of-range values
// are clamped so confidence always lands in [0,100].
func parseConfidence(line string) int {
	var digits strings.Builder
	for _, r := range line {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return DefaultConfidence
	}
	if n > 100 {
		return 100
	}
	return n
}

// parseReasoning joins the text after the marker with every following
// line, preserving multi-line explanations.
func parseReasoning(lines []string) string {
	_, first, found := strings.Cut(lines[0], ":")
	if !found {
		first = ""
	}
	parts := append([]string{strings.TrimSpace(first)}, lines[1:]...)
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
