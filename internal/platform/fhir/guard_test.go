package fhir

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCompileGuard_Invalid(t *testing.T) {
	if _, err := CompileGuard("name.where("); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestMustCompileGuard_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid expression")
		}
	}()
	MustCompileGuard("name.where(")
}

func TestGuard_Holds(t *testing.T) {
	g := MustCompileGuard("name.exists() and name.first().given.exists()")
	if g.Expression() != "name.exists() and name.first().given.exists()" {
		t.Errorf("unexpected expression: %s", g.Expression())
	}

	tests := []struct {
		name     string
		resource string
		want     bool
	}{
		{"named", `{"resourceType":"Patient","name":[{"given":["Ana"],"family":["Lee"]}]}`, true},
		{"no given", `{"resourceType":"Patient","name":[{"family":["Lee"]}]}`, false},
		{"no name", `{"resourceType":"Patient"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Holds(json.RawMessage(tt.resource))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Holds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuard_Require(t *testing.T) {
	g := MustCompileGuard("name.exists()")

	if err := g.Require("prefetch.requestedPatient", json.RawMessage(`{"resourceType":"Patient","name":[{"text":"Ana"}]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := g.Require("prefetch.requestedPatient", json.RawMessage(`{"resourceType":"Patient"}`))
	var bad *BadRequestError
	if !errors.As(err, &bad) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
	if bad.Expression != "prefetch.requestedPatient" {
		t.Errorf("unexpected expression: %s", bad.Expression)
	}

	err = g.Require("prefetch.requestedPatient", json.RawMessage(`not json`))
	if !errors.As(err, &bad) {
		t.Fatalf("expected BadRequestError for unparsable resource, got %v", err)
	}
}
