package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResourceHeader holds the fields every FHIR resource carries. It is used to
// peek at a raw resource before decoding it into a concrete shape.
type ResourceHeader struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
}

// Reference returns the relative reference "Type/id" for the resource.
func (r ResourceHeader) Reference() string {
	return FormatReference(r.ResourceType, r.ID)
}

// Bundle is a FHIR Bundle with undecoded entry resources.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// FormatReference builds a relative FHIR reference.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// PeekResource decodes only the header of a raw resource.
func PeekResource(raw json.RawMessage) (ResourceHeader, error) {
	var h ResourceHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("decode resource header: %w", err)
	}
	return h, nil
}

// IsJSONNull reports whether raw is absent or the JSON literal null.
func IsJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// StringList decodes either a JSON string or an array of strings. DSTU2
// HumanName.family is an array while R4 made it a single string; hook
// clients send both.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	if IsJSONNull(data) {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*s = many
	return nil
}

// First returns the first non-empty value.
func (s StringList) First() string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// HumanName is a FHIR HumanName tolerant of DSTU2 and R4 family encodings.
type HumanName struct {
	Use    string     `json:"use,omitempty"`
	Text   string     `json:"text,omitempty"`
	Family StringList `json:"family,omitempty"`
	Given  StringList `json:"given,omitempty"`
}
