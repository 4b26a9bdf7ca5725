package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Workflow is the JSON-serializable workflow document.
// Agents provide this inline to the validator entry points.
//
// A nil Nodes or Connections means the field was absent from the document;
// an empty non-nil value means it was present but empty.
type Workflow struct {
	Name        string         `json:"name"`
	Nodes       []Node         `json:"nodes"`
	Connections ConnectionMap  `json:"connections"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// Node is a single typed unit of work in a workflow.
// The validator never mutates a Node; fixes are returned as patches.
type Node struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeVersion any            `json:"typeVersion,omitempty"` // number or (invalid) string, kept as decoded
	Position    []float64      `json:"position,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
	Notes       string         `json:"notes,omitempty"`

	// Node-level error handling settings.
	OnError          string `json:"onError,omitempty"` // stopWorkflow | continueRegularOutput | continueErrorOutput
	RetryOnFail      *bool  `json:"retryOnFail,omitempty"`
	ContinueOnFail   *bool  `json:"continueOnFail,omitempty"` // legacy, superseded by OnError
	MaxTries         int    `json:"maxTries,omitempty"`
	WaitBetweenTries int    `json:"waitBetweenTries,omitempty"`
	AlwaysOutputData bool   `json:"alwaysOutputData,omitempty"`
	ExecuteOnce      bool   `json:"executeOnce,omitempty"`
}

// OnError values understood by the platform.
const (
	OnErrorStop           = "stopWorkflow"
	OnErrorContinue       = "continueRegularOutput"
	OnErrorContinueOutput = "continueErrorOutput"
)

// Version returns the node's typeVersion as a number.
// ok is false when the version is absent; numeric is false when it is
// present but not a number.
func (n *Node) Version() (v float64, ok bool, numeric bool) {
	switch tv := n.TypeVersion.(type) {
	case nil:
		return 0, false, false
	case float64:
		return tv, true, true
	case float32:
		return float64(tv), true, true
	case int:
		return float64(tv), true, true
	case int64:
		return float64(tv), true, true
	case json.Number:
		f, err := tv.Float64()
		return f, true, err == nil
	default:
		return 0, true, false
	}
}

// ErrorSettings returns the node-level error handling keys that are set,
// keyed the way they appear in the document.
func (n *Node) ErrorSettings() map[string]any {
	out := make(map[string]any, 6)
	if n.OnError != "" {
		out["onError"] = n.OnError
	}
	if n.RetryOnFail != nil {
		out["retryOnFail"] = *n.RetryOnFail
	}
	if n.ContinueOnFail != nil {
		out["continueOnFail"] = *n.ContinueOnFail
	}
	if n.MaxTries > 0 {
		out["maxTries"] = n.MaxTries
	}
	if n.WaitBetweenTries > 0 {
		out["waitBetweenTries"] = n.WaitBetweenTries
	}
	if n.AlwaysOutputData {
		out["alwaysOutputData"] = true
	}
	return out
}

// NodeSettingKeys are configuration keys that live on the node itself rather
// than in its parameters.
var NodeSettingKeys = map[string]bool{
	"onError":          true,
	"retryOnFail":      true,
	"continueOnFail":   true,
	"maxTries":         true,
	"waitBetweenTries": true,
	"alwaysOutputData": true,
	"executeOnce":      true,
}

// LocalType returns the part of a node type after the last package
// separator, e.g. "httpRequest" for "n8n-nodes-base.httpRequest".
func LocalType(nodeType string) string {
	if i := strings.LastIndexByte(nodeType, '.'); i >= 0 {
		return nodeType[i+1:]
	}
	return nodeType
}

// FormatVersion renders a typeVersion without trailing zeros.
func FormatVersion(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Descriptor is node-type metadata sourced from the catalog.
type Descriptor struct {
	Type           string     `json:"type"`
	DisplayName    string     `json:"displayName"`
	Package        string     `json:"package"`
	CurrentVersion float64    `json:"currentVersion"`
	MaxVersion     float64    `json:"maxVersion,omitempty"`
	IsVersioned    bool       `json:"isVersioned"`
	IsAITool       bool       `json:"isAITool,omitempty"`
	IsTrigger      bool       `json:"isTrigger,omitempty"`
	Credentials    []string   `json:"credentials,omitempty"`
	Properties     []Property `json:"properties,omitempty"`
}

// Property is one declared configuration property of a node type.
type Property struct {
	Name           string           `json:"name"`
	DisplayName    string           `json:"displayName,omitempty"`
	Type           string           `json:"type"` // string | number | boolean | options | multiOptions | collection | fixedCollection | json
	Required       bool             `json:"required,omitempty"`
	Default        any              `json:"default,omitempty"`
	Options        []PropertyOption `json:"options,omitempty"`
	DisplayOptions *DisplayOptions  `json:"displayOptions,omitempty"`
}

// PropertyOption is one allowed value of an options-typed property.
type PropertyOption struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// DisplayOptions controls when a property is visible, keyed by the names of
// sibling properties and the values that show or hide it.
type DisplayOptions struct {
	Show map[string][]any `json:"show,omitempty"`
	Hide map[string][]any `json:"hide,omitempty"`
}
