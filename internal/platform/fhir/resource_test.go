package fhir

import (
	"encoding/json"
	"testing"
)

func TestFormatReference(t *testing.T) {
	ref := FormatReference("MedicationRequest", "abc-123")
	if ref != "MedicationRequest/abc-123" {
		t.Errorf("expected MedicationRequest/abc-123, got %s", ref)
	}
}

func TestPeekResource(t *testing.T) {
	h, err := PeekResource(json.RawMessage(`{"resourceType":"MedicationRequest","id":"m1","status":"draft"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ResourceType != "MedicationRequest" || h.ID != "m1" {
		t.Errorf("unexpected header: %+v", h)
	}
	if h.Reference() != "MedicationRequest/m1" {
		t.Errorf("unexpected reference: %s", h.Reference())
	}

	if _, err := PeekResource(json.RawMessage(`[1,2]`)); err == nil {
		t.Error("expected error for non-object resource")
	}
}

func TestIsJSONNull(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"null", true},
		{"  null ", true},
		{"{}", false},
		{`"x"`, false},
	}
	for _, tt := range tests {
		if got := IsJSONNull(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("IsJSONNull(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestHumanName_FamilyEncodings(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFamily string
		wantGiven  string
	}{
		{"dstu2 array", `{"given":["Ana"],"family":["Lee"]}`, "Lee", "Ana"},
		{"r4 string", `{"given":["Ana","Maria"],"family":"Lee"}`, "Lee", "Ana"},
		{"missing family", `{"given":["Ana"]}`, "", "Ana"},
		{"empty leading given", `{"given":["","Bo"],"family":"Lee"}`, "Lee", "Bo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n HumanName
			if err := json.Unmarshal([]byte(tt.input), &n); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n.Family.First() != tt.wantFamily {
				t.Errorf("family = %q, want %q", n.Family.First(), tt.wantFamily)
			}
			if n.Given.First() != tt.wantGiven {
				t.Errorf("given = %q, want %q", n.Given.First(), tt.wantGiven)
			}
		})
	}
}

func TestStringList_RejectsNumbers(t *testing.T) {
	var s StringList
	if err := json.Unmarshal([]byte(`42`), &s); err == nil {
		t.Error("expected error decoding a number")
	}
}
