package cds

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/cdshooks/internal/platform/fhir"
)

// patientNameGuard is the precondition for the greeting card.
const patientNameGuard = "name.exists() and name.first().given.exists() and name.first().family.exists()"

// cardNamespace seeds the name-based card UUIDs.
var cardNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:cds-hooks:card"))

// Source identifies this service on every card it returns.
type Source struct {
	Label   string
	DocsURL string
}

// Service evaluates the hooks advertised in the catalog. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	source      Source
	patientName *fhir.Guard
	logger      zerolog.Logger
}

func NewService(source Source, logger zerolog.Logger) *Service {
	return &Service{
		source:      source,
		patientName: fhir.MustCompileGuard(patientNameGuard),
		logger:      logger,
	}
}

// -- patient-view --

// PatientGreeting returns one info card naming the patient in
// prefetch.requestedPatient.
func (s *Service) PatientGreeting(_ context.Context, req fhir.CDSHookRequest) (*fhir.CDSHookResponse, error) {
	const location = "prefetch." + requestedPatientKey

	raw, ok := req.Prefetch[requestedPatientKey]
	if !ok || fhir.IsJSONNull(raw) {
		return nil, fhir.NewBadRequest(location, "requestedPatient prefetch is required")
	}
	resource := unwrapPrefetch(raw)

	header, err := fhir.PeekResource(resource)
	if err != nil {
		return nil, fhir.NewBadRequest(location, "expected a Patient resource")
	}
	if header.ResourceType != "" && header.ResourceType != "Patient" {
		return nil, fhir.NewBadRequest(location, "expected a Patient resource, got %s", header.ResourceType)
	}
	if err := s.patientName.Require(location, resource); err != nil {
		return nil, err
	}

	var patient Patient
	if err := decodeResource(resource, &patient); err != nil {
		return nil, fhir.NewBadRequest(location+".name", "%v", err)
	}
	if len(patient.Name) == 0 || patient.Name[0].Given.First() == "" || patient.Name[0].Family.First() == "" {
		return nil, fhir.NewBadRequest(location+".name", "first name entry needs a given and a family name")
	}

	card := s.newCard(PatientGreetingID, req.HookInstance, fhir.IndicatorInfo,
		fmt.Sprintf("Now seeing: %s", patient.DisplayName()))
	card.Links = []fhir.CDSLink{{
		Label: "Learn more about CDS Hooks",
		URL:   s.source.DocsURL,
		Type:  "absolute",
	}}

	return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{card}}, nil
}

// -- order-select / medication-prescribe --

// MedicationRecommendation compares the draft medication against the
// recommended concept. A matching order gets an info card; anything else gets
// a warning card suggesting the replacement. Context without an applicable
// order yields no cards.
func (s *Service) MedicationRecommendation(_ context.Context, req fhir.CDSHookRequest) (*fhir.CDSHookResponse, error) {
	order, err := ExtractDraftOrder(req.Context)
	if err != nil {
		return nil, err
	}
	if order == nil {
		s.logger.Debug().Str("hook_instance", req.HookInstance).Msg("no selected medication order in context")
		return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{}}, nil
	}

	concept, err := order.MedicationConcept()
	if err != nil {
		return nil, err
	}
	code := PrimaryCode(concept)
	if code == "" {
		s.logger.Debug().
			Str("hook_instance", req.HookInstance).
			Str("order", order.Reference()).
			Msg("draft order has no coded medication")
		return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{}}, nil
	}

	if code == TargetCode {
		card := s.newCard(MedicationRecommendationID, req.HookInstance, fhir.IndicatorInfo,
			"Currently prescribing a low-dose Aspirin")
		return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{card}}, nil
	}

	replacement, err := order.WithConcept(TargetConcept())
	if err != nil {
		return nil, fmt.Errorf("build replacement order: %w", err)
	}

	card := s.newCard(MedicationRecommendationID, req.HookInstance, fhir.IndicatorWarning,
		"Reduce cardiovascular risks, prescribe daily 81 MG Aspirin")
	card.Detail = fmt.Sprintf("The draft order is for %s. Low-dose aspirin is recommended instead.", conceptLabel(concept))

	label := "Change medication to " + TargetDisplay
	card.Suggestions = []fhir.CDSSuggestion{{
		Label: label,
		UUID:  uuid.NewSHA1(uuid.MustParse(card.UUID), []byte(label)).String(),
		Actions: []fhir.CDSAction{{
			Type:        fhir.ActionCreate,
			Description: "Replace the draft medication with " + TargetDisplay,
			Resource:    replacement,
		}},
	}}

	return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{card}}, nil
}

// -- feedback --

// RecordFeedback logs what the clinician did with a card.
func (s *Service) RecordFeedback(_ context.Context, serviceID string, fb fhir.CDSFeedbackRequest) error {
	evt := s.logger.Info().
		Str("service", serviceID).
		Str("card", fb.Card).
		Str("outcome", fb.Outcome).
		Int("accepted_suggestions", len(fb.AcceptedSuggestions))
	if fb.OutcomeTimestamp != "" {
		evt = evt.Str("outcome_timestamp", fb.OutcomeTimestamp)
	}
	if len(fb.OverrideReasons) > 0 {
		codes := make([]string, 0, len(fb.OverrideReasons))
		for _, r := range fb.OverrideReasons {
			codes = append(codes, r.Code)
		}
		evt = evt.Strs("override_reasons", codes)
	}
	evt.Msg("card feedback")
	return nil
}

// newCard builds a card whose UUID depends only on the service, the hook
// instance and the summary, so identical requests get identical cards.
func (s *Service) newCard(serviceID, hookInstance, indicator, summary string) fhir.CDSCard {
	id := uuid.NewSHA1(cardNamespace, []byte(serviceID+"|"+hookInstance+"|"+summary))
	return fhir.CDSCard{
		UUID:      id.String(),
		Summary:   summary,
		Indicator: indicator,
		Source: fhir.CDSSource{
			Label: s.source.Label,
			URL:   s.source.DocsURL,
		},
	}
}
