package schema

import "fmt"

// Severity indicates how an issue affects validity.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueCategory attributes an issue to the component that raised it.
type IssueCategory string

const (
	CategoryStructural    IssueCategory = "structural"
	CategoryConfiguration IssueCategory = "configuration"
	CategoryExpression    IssueCategory = "expression"
	CategoryTopology      IssueCategory = "topology"
)

// Issue codes.
const (
	CodeMissingNodes           = "MISSING_NODES"
	CodeMissingConnections     = "MISSING_CONNECTIONS"
	CodeEmptyWorkflow          = "EMPTY_WORKFLOW"
	CodeSingleNode             = "SINGLE_NODE_NOT_ENTRY_POINT"
	CodeNoConnections          = "NO_CONNECTIONS"
	CodeDuplicateName          = "DUPLICATE_NODE_NAME"
	CodeDuplicateID            = "DUPLICATE_NODE_ID"
	CodeNoTrigger              = "NO_TRIGGER"
	CodeUnknownNodeType        = "UNKNOWN_NODE_TYPE"
	CodeNonCanonicalType       = "NON_CANONICAL_NODE_TYPE"
	CodeMissingTypeVersion     = "MISSING_TYPE_VERSION"
	CodeInvalidTypeVersion     = "INVALID_TYPE_VERSION"
	CodeOutdatedTypeVersion    = "OUTDATED_TYPE_VERSION"
	CodeUnsupportedTypeVersion = "UNSUPPORTED_TYPE_VERSION"
	CodeConnectionUsesID       = "CONNECTION_USES_NODE_ID"
	CodeUnknownSource          = "UNKNOWN_CONNECTION_SOURCE"
	CodeUnknownTarget          = "UNKNOWN_CONNECTION_TARGET"
	CodeDisabledTarget         = "CONNECTION_TO_DISABLED_NODE"
	CodeErrorOutputUnused      = "ERROR_OUTPUT_WITHOUT_HANDLER"
	CodeOrphanNode             = "ORPHAN_NODE"
	CodeCycleDetected          = "CYCLE_DETECTED"
	CodeConfiguration          = "CONFIGURATION"
	CodeErrorHandlingMissing   = "ERROR_HANDLING_MISSING"
	CodeExpression             = "EXPRESSION"
	CodeTopology               = "TOPOLOGY"
	CodeInternal               = "INTERNAL"

	// AI topology.
	CodeMissingLanguageModel  = "MISSING_LANGUAGE_MODEL"
	CodeTooManyLanguageModels = "TOO_MANY_LANGUAGE_MODELS"
	CodeTooManyMemories       = "TOO_MANY_MEMORY_CONNECTIONS"
	CodeStreamingWithOutput   = "STREAMING_WITH_MAIN_OUTPUT"
	CodeMissingPromptText     = "MISSING_PROMPT_TEXT"
	CodeMissingOutputParser   = "MISSING_OUTPUT_PARSER"
	CodeMissingVectorStore    = "MISSING_VECTOR_STORE"
	CodeMissingEmbedding      = "MISSING_EMBEDDING"
	CodeMissingDocumentLoader = "MISSING_DOCUMENT_LOADER"
	CodeMissingRetriever      = "MISSING_RETRIEVER"
	CodeInvalidToolConfig     = "INVALID_TOOL_CONFIGURATION"
	CodePlaceholderMismatch   = "PLACEHOLDER_MISMATCH"
	CodeCommunityTool         = "COMMUNITY_NODE_AS_TOOL"
	CodeToolNotConnected      = "TOOL_NOT_CONNECTED"
)

// ValidationIssue is a single validation finding attributed to a node when
// one applies.
type ValidationIssue struct {
	Severity Severity      `json:"severity"`
	Category IssueCategory `json:"category"`
	NodeID   string        `json:"nodeId,omitempty"`
	NodeName string        `json:"nodeName,omitempty"`
	Message  string        `json:"message"`
	Code     string        `json:"code,omitempty"`
}

func (i ValidationIssue) String() string {
	if i.NodeName != "" {
		return fmt.Sprintf("%s: %s", i.NodeName, i.Message)
	}
	return i.Message
}

// Statistics summarizes a validation run.
type Statistics struct {
	TotalNodes           int `json:"totalNodes"`
	EnabledNodes         int `json:"enabledNodes"`
	TriggerNodes         int `json:"triggerNodes"`
	ValidConnections     int `json:"validConnections"`
	InvalidConnections   int `json:"invalidConnections"`
	ExpressionsValidated int `json:"expressionsValidated"`
}

// NodeFix is an auto-fix patch for one node's configuration. Applying it is
// the caller's decision.
type NodeFix struct {
	NodeID   string         `json:"nodeId,omitempty"`
	NodeName string         `json:"nodeName"`
	Patch    map[string]any `json:"patch"`
}

// ExpressionUsage lists the builtin variables and node names one node's
// expressions reference, both sorted.
type ExpressionUsage struct {
	NodeName  string   `json:"nodeName"`
	Variables []string `json:"usedVariables"`
	Nodes     []string `json:"usedNodes"`
}

// ValidationResult aggregates all issues from the validation pipeline.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Errors      []ValidationIssue `json:"errors"`
	Warnings    []ValidationIssue `json:"warnings"`
	Info        []ValidationIssue `json:"info,omitempty"`
	Suggestions []string          `json:"suggestions"`
	Statistics  Statistics        `json:"statistics"`
	Fixes       []NodeFix         `json:"fixes,omitempty"`
	Expressions []ExpressionUsage `json:"expressions,omitempty"`
}

// NewValidationResult returns an empty result with non-nil lists so the JSON
// form always carries arrays.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:       true,
		Errors:      []ValidationIssue{},
		Warnings:    []ValidationIssue{},
		Suggestions: []string{},
	}
}

// Add appends an issue to the list matching its severity.
func (r *ValidationResult) Add(issue ValidationIssue) {
	switch issue.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, issue)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, issue)
	default:
		r.Info = append(r.Info, issue)
	}
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(cat IssueCategory, node *Node, code, message string) {
	r.Add(newIssue(SeverityError, cat, node, code, message))
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(cat IssueCategory, node *Node, code, message string) {
	r.Add(newIssue(SeverityWarning, cat, node, code, message))
}

// AddInfo appends an info-severity issue.
func (r *ValidationResult) AddInfo(cat IssueCategory, node *Node, code, message string) {
	r.Add(newIssue(SeverityInfo, cat, node, code, message))
}

// Suggest appends a suggestion unless an identical one is already present.
func (r *ValidationResult) Suggest(s string) {
	for _, existing := range r.Suggestions {
		if existing == s {
			return
		}
	}
	r.Suggestions = append(r.Suggestions, s)
}

// Merge appends another result's issues, suggestions and fixes in order.
// Statistics are not merged.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Info = append(r.Info, other.Info...)
	for _, s := range other.Suggestions {
		r.Suggest(s)
	}
	r.Fixes = append(r.Fixes, other.Fixes...)
	r.Expressions = append(r.Expressions, other.Expressions...)
}

// Finalize recomputes Valid from the error list.
func (r *ValidationResult) Finalize() *ValidationResult {
	r.Valid = len(r.Errors) == 0
	return r
}

// ToError converts the result to a FlowError if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if len(r.Errors) == 0 {
		return nil
	}

	msg := r.Errors[0].String()
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}

func newIssue(sev Severity, cat IssueCategory, node *Node, code, message string) ValidationIssue {
	issue := ValidationIssue{Severity: sev, Category: cat, Code: code, Message: message}
	if node != nil {
		issue.NodeID = node.ID
		issue.NodeName = node.Name
	}
	return issue
}
