package cds

import (
	"encoding/json"

	"github.com/ehr/cdshooks/internal/platform/fhir"
)

// Service ids advertised in discovery.
const (
	PatientGreetingID          = "patient-greeting"
	MedicationRecommendationID = "medication-recommendation"
)

// Hook names.
const (
	HookPatientView         = "patient-view"
	HookOrderSelect         = "order-select"
	HookMedicationPrescribe = "medication-prescribe"
)

// The fixed concept the medication rule recommends.
const (
	RxNormSystem  = "http://www.nlm.nih.gov/research/umls/rxnorm"
	TargetCode    = "243670"
	TargetDisplay = "Aspirin 81 MG Oral Tablet"
)

const (
	requestedPatientKey = "requestedPatient"
	draftOrdersKey      = "draftOrders"
	selectionsKey       = "selections"
	medicationsKey      = "medications"
)

// Order resource types that can carry a draft medication.
const (
	ResourceMedicationRequest = "MedicationRequest"
	ResourceMedicationOrder   = "MedicationOrder"
)

// Patient is the subset of a FHIR Patient the greeting card reads.
type Patient struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id,omitempty"`
	Name         []fhir.HumanName `json:"name,omitempty"`
}

// DisplayName returns "given family" from the first name entry.
func (p *Patient) DisplayName() string {
	if len(p.Name) == 0 {
		return ""
	}
	n := p.Name[0]
	return n.Given.First() + " " + n.Family.First()
}

// prefetchEntry accepts a prefetched resource either bare or wrapped as
// {"resource": {...}}.
type prefetchEntry struct {
	Resource json.RawMessage `json:"resource"`
}

// unwrapPrefetch returns the resource carried by a prefetch value.
func unwrapPrefetch(raw json.RawMessage) json.RawMessage {
	var entry prefetchEntry
	if err := json.Unmarshal(raw, &entry); err == nil && !fhir.IsJSONNull(entry.Resource) {
		if h, err := fhir.PeekResource(raw); err == nil && h.ResourceType == "" {
			return entry.Resource
		}
	}
	return raw
}

// DraftOrder is a draft medication order located in hook context. Raw keeps
// the caller's bytes so a suggestion can be built from a private copy.
type DraftOrder struct {
	ResourceType string
	ID           string
	Raw          json.RawMessage

	location string
}

// Reference returns "Type/id" for matching against selections.
func (o DraftOrder) Reference() string {
	return fhir.FormatReference(o.ResourceType, o.ID)
}

func isMedicationOrder(resourceType string) bool {
	return resourceType == ResourceMedicationRequest || resourceType == ResourceMedicationOrder
}
