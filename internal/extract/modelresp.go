package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ModelOption is one option-for-consideration inside a model extraction.
// The external model emits either a bare string or an object with its own
// confidence; both decode into this variant.
type ModelOption struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence_score,omitempty"`
}

// UnmarshalJSON accepts either "..." or {"text": "...", "confidence_score": n}.
func (o *ModelOption) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Text = s
		o.Confidence = nil
		return nil
	}

	type alias ModelOption
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = ModelOption(a)
	return nil
}

// ModelExtraction is one vulnerability/OFC object from the external
// model's structured response for a chunk.
type ModelExtraction struct {
	Vulnerability           string        `json:"vulnerability"`
	OptionsForConsideration []ModelOption `json:"options_for_consideration"`
	Discipline              string        `json:"discipline"`
	Sector                  string        `json:"sector"`
	Subsector               string        `json:"subsector"`
	ConfidenceScore         float64       `json:"confidence_score"`
	Source                  string        `json:"source"`
	PageRef                 string        `json:"page_ref"`
}

// valid reports whether the object carries the required fields. Objects
// failing this check are quarantined rather than accessed optimistically.
func (e ModelExtraction) valid() bool {
	if strings.TrimSpace(e.Vulnerability) == "" {
		return false
	}
	if e.ConfidenceScore < 0 || e.ConfidenceScore > 1 {
		return false
	}
	return true
}

// ParseModelResponse decodes the model's JSON for one chunk into validated
// extractions. A decode error means the whole chunk response is
// unusable (the parse-failure case); invalid objects inside an otherwise
// well-formed response are dropped and counted as quarantined.
func ParseModelResponse(raw []byte) ([]ModelExtraction, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}

	var items []ModelExtraction
	if err := json.Unmarshal(raw, &items); err != nil {
		// Some model outputs wrap the list in an envelope.
		var envelope struct {
			Extractions []ModelExtraction `json:"extractions"`
		}
		if envErr := json.Unmarshal(raw, &envelope); envErr != nil || envelope.Extractions == nil {
			return nil, 0, eris.Wrap(err, "extract: unparseable model response")
		}
		items = envelope.Extractions
	}

	quarantined := 0
	valid := items[:0]
	for _, it := range items {
		if !it.valid() {
			quarantined++
			continue
		}
		valid = append(valid, it)
	}
	return valid, quarantined, nil
}
