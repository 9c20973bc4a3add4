package cds

import "github.com/ehr/cdshooks/internal/platform/fhir"

// catalog is the fixed set of advertised services, in discovery order.
var catalog = []fhir.CDSService{
	{
		Hook:        HookPatientView,
		ID:          PatientGreetingID,
		Title:       "Patient greeting",
		Description: "Displays the name of the patient whose chart is open",
		Prefetch: map[string]string{
			requestedPatientKey: "Patient/{{context.patientId}}",
		},
	},
	{
		Hook:        HookOrderSelect,
		ID:          MedicationRecommendationID,
		Title:       "Medication recommendation",
		Description: "Suggests low-dose aspirin when a different medication is selected",
	},
}

// Catalog returns a copy of the advertised services.
func Catalog() []fhir.CDSService {
	out := make([]fhir.CDSService, len(catalog))
	for i, svc := range catalog {
		if svc.Prefetch != nil {
			prefetch := make(map[string]string, len(svc.Prefetch))
			for k, v := range svc.Prefetch {
				prefetch[k] = v
			}
			svc.Prefetch = prefetch
		}
		out[i] = svc
	}
	return out
}
