package fhir

import "fmt"

// OperationOutcome issue severities (FHIR R4).
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by this service.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeRequired     = "required"
	IssueTypeNotFound     = "not-found"
	IssueTypeProcessing   = "processing"
	IssueTypeNotSupported = "not-supported"
	IssueTypeTooCostly    = "too-costly"
	IssueTypeTimeout      = "timeout"
	IssueTypeException    = "exception"
)

// OperationOutcome is the error body for every non-2xx JSON response.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{{
			Severity:    severity,
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

// At attaches a FHIRPath location to every issue and returns o.
func (o *OperationOutcome) At(expression string) *OperationOutcome {
	for i := range o.Issue {
		o.Issue[i].Expression = []string{expression}
	}
	return o
}

// HasErrors returns true if the outcome contains any error or fatal issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, resourceType+"/"+id+" not found")
}

// ValidationOutcome reports invalid content at field.
func ValidationOutcome(field, message string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, field+": "+message).At(field)
}

// RequiredFieldOutcome reports a missing required field.
func RequiredFieldOutcome(field string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeRequired, field+" is required").At(field)
}

func NotSupportedOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotSupported, diagnostics)
}

// TooLargeOutcome reports a request body over limit bytes.
func TooLargeOutcome(limit int64) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeTooCostly,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}

// TimeoutOutcome reports a request that ran past its deadline.
func TimeoutOutcome() *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeTimeout,
		"request processing exceeded the allowed time limit")
}

// InternalErrorOutcome creates an OperationOutcome for internal server errors.
func InternalErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityFatal, IssueTypeException, diagnostics)
}
