package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// rawResult tolerates the shapes models actually return: amounts come back
// as floats often enough that we accept either and round.
type rawResult struct {
	Merchant string   `json:"merchant"`
	Date     string   `json:"date"`
	Amount   *float64 `json:"amount"`
}

// parseScanJSON extracts a ScanResult from a model response. Markdown
// fences and surrounding prose are stripped before unmarshaling.
func parseScanJSON(text string) (*ScanResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	text = text[start : end+1]

	var raw rawResult
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	result := &ScanResult{
		Merchant: strings.TrimSpace(raw.Merchant),
		Date:     normalizeDate(raw.Date),
	}
	if raw.Amount != nil {
		result.Amount = int64(math.Round(*raw.Amount))
	}
	return result, nil
}

// normalizeDate coerces the common formats models emit into YYYY-MM-DD.
// Unparseable or missing dates are left empty for the user to fill in.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
