package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultConfidence is assumed when the model omits the confidence block
const DefaultConfidence = 0.5

var (
	fencedConfidence = regexp.MustCompile("(?s)```confidence\\s*\\n?\\{.*?\"confidence\"\\s*:\\s*([\\d.]+).*?\"reason\"\\s*:\\s*\"([^\"]*)\".*?\\}\\s*\\n?```")
	bareConfidence   = regexp.MustCompile(`\{[^{}]*"confidence"\s*:\s*([\d.]+)[^{}]*"reason"\s*:\s*"([^"]*)"[^{}]*\}`)
)

// Assessment is the model's self-reported answer quality
type Assessment struct {
	Confidence float64
	Reason     string
	Found      bool
}

// ParseConfidence strips the trailing confidence block from raw model output.
// Everything from the start of the block on is dropped from the answer.
func ParseConfidence(raw string) (string, Assessment) {
	for _, re := range []*regexp.Regexp{fencedConfidence, bareConfidence} {
		m := re.FindStringSubmatchIndex(raw)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(raw[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		return strings.TrimSpace(raw[:m[0]]), Assessment{
			Confidence: clamp(value),
			Reason:     raw[m[4]:m[5]],
			Found:      true,
		}
	}

	return strings.TrimSpace(raw), Assessment{
		Confidence: DefaultConfidence,
		Reason:     "confidence block missing",
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
