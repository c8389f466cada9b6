package domain

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueCode identifies the structural check that produced an issue.
type IssueCode string

const (
	CodeMissingRequiredInput IssueCode = "MissingRequiredInput"
	CodeIncompatiblePorts    IssueCode = "IncompatiblePorts"
	CodeUnknownEndpoint      IssueCode = "UnknownEndpoint"
	CodeUnknownPortType      IssueCode = "UnknownPortType"
	CodeLockedWhileRunning   IssueCode = "LockedWhileRunning"
	CodeCyclicGraph          IssueCode = "CyclicGraph"
)

// ValidationIssue is a single structural problem found in a graph.
type ValidationIssue struct {
	Severity Severity  `json:"severity"`
	Code     IssueCode `json:"code"`
	NodeID   string    `json:"nodeId,omitempty"`
	EdgeID   string    `json:"edgeId,omitempty"`
	Message  string    `json:"message"`
}

// GraphValidationResult is the report produced by the validation engine.
// Valid is true iff no issue has severity error.
type GraphValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

// NewValidationResult derives Valid from the issues.
func NewValidationResult(issues []ValidationIssue) GraphValidationResult {
	if issues == nil {
		issues = []ValidationIssue{}
	}
	valid := true
	for _, is := range issues {
		if is.Severity == SeverityError {
			valid = false
			break
		}
	}
	return GraphValidationResult{Valid: valid, Issues: issues}
}

// Errors returns only the error-severity issues.
func (r GraphValidationResult) Errors() []ValidationIssue {
	return r.filter(func(is ValidationIssue) bool { return is.Severity == SeverityError })
}

// Warnings returns only the warning-severity issues.
func (r GraphValidationResult) Warnings() []ValidationIssue {
	return r.filter(func(is ValidationIssue) bool { return is.Severity == SeverityWarning })
}

// ForNode returns the issues attached to a node.
func (r GraphValidationResult) ForNode(nodeID string) []ValidationIssue {
	return r.filter(func(is ValidationIssue) bool { return is.NodeID == nodeID })
}

// HasCode reports whether any issue carries the code, optionally scoped to a node.
func (r GraphValidationResult) HasCode(code IssueCode, nodeID string) bool {
	for _, is := range r.Issues {
		if is.Code == code && (nodeID == "" || is.NodeID == nodeID) {
			return true
		}
	}
	return false
}

func (r GraphValidationResult) filter(keep func(ValidationIssue) bool) []ValidationIssue {
	var out []ValidationIssue
	for _, is := range r.Issues {
		if keep(is) {
			out = append(out, is)
		}
	}
	return out
}
