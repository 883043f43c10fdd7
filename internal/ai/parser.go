package ai

import (
	"regexp"
	"strconv"
	"strings"
)

// CapturedData is the structured slice of an extraction the client keeps
// between conversation turns. Nil pointers mean "not captured yet" —
// distinct from zero values.
type CapturedData struct {
	Name          *string  `json:"name"`
	Amount        *float64 `json:"amount"`
	Category      *string  `json:"category"`
	PaymentMethod *string  `json:"payment_method"`
	Date          *string  `json:"date"`
	Notes         *string  `json:"notes"`
	Confidence    *string  `json:"confidence"`
	MissingFields []string `json:"missing_fields"`
}

// Extraction is the full parsed model reply.
type Extraction struct {
	CapturedData
	ResponseText *string `json:"response_text"`
}

var kvLine = regexp.MustCompile(`^([a-z_]+):\s*(.*)$`)

// ParseKVResponse extracts the known keys from the model's "key: value"
// line format. The model output is an unreliable wire format: unknown
// lines are ignored, "null" and empty values stay unset, unparsable
// amounts stay unset, and the parser never fails — it returns a
// best-effort Extraction with unset defaults for anything unrecognized.
func ParseKVResponse(text string) Extraction {
	result := Extraction{}
	result.MissingFields = []string{}

	for _, line := range strings.Split(text, "\n") {
		m := kvLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		key := m[1]
		value := strings.TrimSpace(m[2])

		switch key {
		case "missing_fields":
			result.MissingFields = splitFields(value)
		case "amount":
			if value == "" || value == "null" {
				continue
			}
			if num, err := strconv.ParseFloat(value, 64); err == nil {
				result.Amount = &num
			}
		case "name":
			setString(&result.Name, value)
		case "category":
			setString(&result.Category, value)
		case "payment_method":
			setString(&result.PaymentMethod, value)
		case "date":
			setString(&result.Date, value)
		case "notes":
			setString(&result.Notes, value)
		case "confidence":
			setString(&result.Confidence, value)
		case "response_text":
			setString(&result.ResponseText, value)
		}
	}

	return result
}

func setString(dst **string, value string) {
	if value == "" || value == "null" {
		return
	}
	v := value
	*dst = &v
}

func splitFields(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}
