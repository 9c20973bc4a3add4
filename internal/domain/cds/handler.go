package cds

import (
	"fmt"

	"github.com/ehr/cdshooks/internal/platform/fhir"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterServices binds every catalog entry to its card generator on hooks.
func (h *Handler) RegisterServices(hooks *fhir.CDSHooksHandler) error {
	handlers := map[string]fhir.ServiceHandler{
		PatientGreetingID:          h.svc.PatientGreeting,
		MedicationRecommendationID: h.svc.MedicationRecommendation,
	}

	for _, svc := range Catalog() {
		handler, ok := handlers[svc.ID]
		if !ok {
			return fmt.Errorf("no card generator for service %q", svc.ID)
		}
		hooks.RegisterService(svc, handler)
		hooks.RegisterFeedbackHandler(svc.ID, h.svc.RecordFeedback)
	}

	// Older clients still send medication-prescribe for this workflow.
	hooks.RegisterHookAlias(HookOrderSelect, HookMedicationPrescribe)
	return nil
}
