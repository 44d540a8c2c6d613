package llm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kyleking/segmentsql/internal/errors"
)

// Candidate is the structured segment a model returns
type Candidate struct {
	SQLQuery      string  `json:"sqlQuery"`
	SegmentName   string  `json:"segmentName"`
	Description   string  `json:"description"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
	EstimatedSize int64   `json:"estimatedSize"`
}

type rawCandidate struct {
	SQLQuery      string  `json:"sqlQuery"`
	SegmentName   string  `json:"segmentName"`
	Description   string  `json:"description"`
	Reasoning     string  `json:"reasoning"`
	Confidence    flexNum `json:"confidence"`
	EstimatedSize flexNum `json:"estimatedSize"`
}

// flexNum accepts a JSON number or a numeric string such as "250,000"
type flexNum float64

func (n *flexNum) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}

	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")

	if s == "" {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}

	*n = flexNum(v)

	return nil
}

// ExtractJSON returns the first top-level {...} object embedded in text.
// Braces inside string literals are ignored, so code fences and commentary
// around the object are tolerated.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", errors.New(errors.ErrTypeUpstreamParse, "no JSON object found in model response")
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}

			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", errors.New(errors.ErrTypeUpstreamParse, "unterminated JSON object in model response")
}

// ParseCandidate extracts and decodes the candidate from a model response.
// It never returns a partial candidate: a response without a query is an error.
func ParseCandidate(text string) (*Candidate, error) {
	object, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeUpstreamParse, "malformed JSON object in model response")
	}

	candidate := &Candidate{
		SQLQuery:      strings.TrimSpace(raw.SQLQuery),
		SegmentName:   strings.TrimSpace(raw.SegmentName),
		Description:   strings.TrimSpace(raw.Description),
		Reasoning:     strings.TrimSpace(raw.Reasoning),
		Confidence:    clamp(float64(raw.Confidence), 0, 1),
		EstimatedSize: segmentSize(float64(raw.EstimatedSize)),
	}

	if candidate.SQLQuery == "" {
		return nil, errors.New(errors.ErrTypeUpstreamParse, "model response is missing sqlQuery")
	}

	return candidate, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}

	return math.Min(hi, math.Max(lo, v))
}

// segmentSize converts a model-reported size to a household count. NaN and
// negatives are 0; anything past the int64 range saturates.
func segmentSize(v float64) int64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(v)
	}
}
