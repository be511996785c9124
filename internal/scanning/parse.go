package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// normalizeDate returns s as YYYY-MM-DD, or "" when no known layout matches
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// parseInvoiceJSON parses the JSON object in an LLM reply
func parseInvoiceJSON(text string) (*InvoiceData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var data InvoiceData
	if err := json.Unmarshal([]byte(text[start:end+1]), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Payer = strings.TrimSpace(data.Payer)
	if data.Payer == "" {
		data.Payer = "Unknown payer"
	}
	data.Description = strings.TrimSpace(data.Description)
	if data.Amount < 0 {
		data.Amount = 0
	}
	data.IssuedOn = normalizeDate(data.IssuedOn)
	data.DueOn = normalizeDate(data.DueOn)

	return &data, nil
}
