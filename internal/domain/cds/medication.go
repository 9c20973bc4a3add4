package cds

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gofhir/fhir/r4"

	"github.com/ehr/cdshooks/internal/platform/fhir"
)

// TargetConcept returns a fresh copy of the recommended medication concept.
func TargetConcept() r4.CodeableConcept {
	system, code, display, text := RxNormSystem, TargetCode, TargetDisplay, TargetDisplay
	return r4.CodeableConcept{
		Text: &text,
		Coding: []r4.Coding{{
			System:  &system,
			Code:    &code,
			Display: &display,
		}},
	}
}

// PrimaryCode returns coding[0].code, or "" when the concept has none.
func PrimaryCode(cc *r4.CodeableConcept) string {
	if cc == nil || len(cc.Coding) == 0 || cc.Coding[0].Code == nil {
		return ""
	}
	return *cc.Coding[0].Code
}

func conceptLabel(cc *r4.CodeableConcept) string {
	if cc.Text != nil && *cc.Text != "" {
		return *cc.Text
	}
	if len(cc.Coding) > 0 && cc.Coding[0].Display != nil && *cc.Coding[0].Display != "" {
		return *cc.Coding[0].Display
	}
	return "code " + PrimaryCode(cc)
}

// ExtractDraftOrder locates the draft medication order in hook context.
//
// order-select sends a draftOrders Bundle and the list of selected order
// references; the first selected MedicationRequest wins. Older
// medication-prescribe requests send the order under medications, either as
// an array or a Bundle. A nil order with a nil error means the context holds
// nothing this service applies to.
func ExtractDraftOrder(hookContext map[string]json.RawMessage) (*DraftOrder, error) {
	if raw, ok := hookContext[draftOrdersKey]; ok && !fhir.IsJSONNull(raw) {
		return selectedDraftOrder(raw, hookContext[selectionsKey])
	}
	if raw, ok := hookContext[medicationsKey]; ok && !fhir.IsJSONNull(raw) {
		return firstMedicationOrder(raw)
	}
	return nil, nil
}

func selectedDraftOrder(rawBundle, rawSelections json.RawMessage) (*DraftOrder, error) {
	const location = "context." + draftOrdersKey

	entries, err := bundleResources(location, rawBundle)
	if err != nil {
		return nil, err
	}

	var selections []string
	if !fhir.IsJSONNull(rawSelections) {
		if err := json.Unmarshal(rawSelections, &selections); err != nil {
			return nil, fhir.NewBadRequest("context."+selectionsKey, "expected an array of references")
		}
	}
	if len(selections) == 0 {
		return nil, nil
	}
	selected := make(map[string]bool, len(selections))
	for _, ref := range selections {
		selected[ref] = true
	}

	for i, raw := range entries {
		order, err := peekOrder(fmt.Sprintf("%s.entry[%d].resource", location, i), raw)
		if err != nil {
			return nil, err
		}
		if order.ResourceType != ResourceMedicationRequest {
			continue
		}
		if selected[order.Reference()] {
			return order, nil
		}
	}
	return nil, nil
}

func firstMedicationOrder(raw json.RawMessage) (*DraftOrder, error) {
	const location = "context." + medicationsKey

	var resources []json.RawMessage
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(raw, &resources); err != nil {
			return nil, fhir.NewBadRequest(location, "expected an array of resources or a Bundle")
		}
	} else {
		var err error
		if resources, err = bundleResources(location, raw); err != nil {
			return nil, err
		}
	}

	for i, res := range resources {
		order, err := peekOrder(fmt.Sprintf("%s[%d]", location, i), res)
		if err != nil {
			return nil, err
		}
		if isMedicationOrder(order.ResourceType) {
			return order, nil
		}
	}
	return nil, nil
}

// bundleResources returns the entry resources of a raw Bundle.
func bundleResources(location string, raw json.RawMessage) ([]json.RawMessage, error) {
	var bundle fhir.Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fhir.NewBadRequest(location, "expected a Bundle")
	}
	if bundle.ResourceType != "Bundle" {
		return nil, fhir.NewBadRequest(location, "expected a Bundle, got resourceType %q", bundle.ResourceType)
	}
	resources := make([]json.RawMessage, 0, len(bundle.Entry))
	for _, e := range bundle.Entry {
		if fhir.IsJSONNull(e.Resource) {
			continue
		}
		resources = append(resources, e.Resource)
	}
	return resources, nil
}

func peekOrder(location string, raw json.RawMessage) (*DraftOrder, error) {
	header, err := fhir.PeekResource(raw)
	if err != nil {
		return nil, fhir.NewBadRequest(location, "expected a resource object")
	}
	return &DraftOrder{
		ResourceType: header.ResourceType,
		ID:           header.ID,
		Raw:          raw,
		location:     location,
	}, nil
}

// MedicationConcept decodes medicationCodeableConcept. It returns nil when the
// order names its medication some other way.
func (o *DraftOrder) MedicationConcept() (*r4.CodeableConcept, error) {
	var body struct {
		MedicationCodeableConcept *r4.CodeableConcept `json:"medicationCodeableConcept"`
	}
	if err := json.Unmarshal(o.Raw, &body); err != nil {
		return nil, fhir.NewBadRequest(o.location+".medicationCodeableConcept", "expected a CodeableConcept")
	}
	return body.MedicationCodeableConcept, nil
}

// WithConcept returns a copy of the order with medicationCodeableConcept
// replaced. The copy is decoded from the raw bytes and shares nothing with
// the caller's request.
func (o *DraftOrder) WithConcept(cc r4.CodeableConcept) (map[string]interface{}, error) {
	var resource map[string]interface{}
	if err := decodeResource(o.Raw, &resource); err != nil {
		return nil, err
	}
	resource["medicationCodeableConcept"] = codeableConceptToMap(&cc)
	return resource, nil
}

func codingToMap(coding *r4.Coding) map[string]interface{} {
	result := make(map[string]interface{})
	if coding.System != nil {
		result["system"] = *coding.System
	}
	if coding.Version != nil {
		result["version"] = *coding.Version
	}
	if coding.Code != nil {
		result["code"] = *coding.Code
	}
	if coding.Display != nil {
		result["display"] = *coding.Display
	}
	return result
}

func codeableConceptToMap(cc *r4.CodeableConcept) map[string]interface{} {
	result := make(map[string]interface{})
	if len(cc.Coding) > 0 {
		codings := make([]interface{}, 0, len(cc.Coding))
		for i := range cc.Coding {
			codings = append(codings, codingToMap(&cc.Coding[i]))
		}
		result["coding"] = codings
	}
	if cc.Text != nil {
		result["text"] = *cc.Text
	}
	return result
}

// decodeResource decodes raw keeping numbers as json.Number so a re-encoded
// copy does not lose precision.
func decodeResource(raw json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode resource: %w", err)
	}
	return nil
}
