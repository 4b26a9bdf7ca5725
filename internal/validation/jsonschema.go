package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowcheck/pkg/schema"
)

const workflowSchemaURL = "https://flowcheck.dev/schemas/workflow.json"

// workflowSchemaJSON describes the document shape the validator can decode.
// It checks shape only; everything semantic is reported as findings.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcheck.dev/schemas/workflow.json",
  "type": "object",
  "properties": {
    "name": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "connections": {
      "type": "object",
      "additionalProperties": { "$ref": "#/$defs/nodeConnections" }
    },
    "settings": { "type": "object" }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "id": { "type": "string" },
        "name": { "type": "string" },
        "type": { "type": "string" },
        "typeVersion": {},
        "position": {
          "type": "array",
          "items": { "type": "number" }
        },
        "parameters": { "type": "object" },
        "disabled": { "type": "boolean" },
        "credentials": { "type": "object" },
        "notes": { "type": "string" },
        "onError": { "type": "string" },
        "retryOnFail": { "type": "boolean" },
        "continueOnFail": { "type": "boolean" },
        "maxTries": { "type": "integer", "minimum": 0 },
        "waitBetweenTries": { "type": "integer", "minimum": 0 },
        "alwaysOutputData": { "type": "boolean" },
        "executeOnce": { "type": "boolean" }
      }
    },
    "nodeConnections": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {
          "anyOf": [
            { "type": "null" },
            { "type": "array", "items": { "$ref": "#/$defs/edge" } }
          ]
        }
      }
    },
    "edge": {
      "type": "object",
      "required": ["node"],
      "properties": {
        "node": { "type": "string" },
        "type": { "type": "string" },
        "index": { "type": "integer", "minimum": 0 }
      }
    }
  }
}`

var (
	workflowSchemaOnce sync.Once
	workflowSchema     *jsonschema.Schema
	workflowSchemaErr  error
)

func compiledWorkflowSchema() (*jsonschema.Schema, error) {
	workflowSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
		if err != nil {
			workflowSchemaErr = fmt.Errorf("unmarshal workflow schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(workflowSchemaURL, doc); err != nil {
			workflowSchemaErr = fmt.Errorf("add workflow schema resource: %w", err)
			return
		}
		workflowSchema, workflowSchemaErr = c.Compile(workflowSchemaURL)
	})
	return workflowSchema, workflowSchemaErr
}

// DecodeWorkflow checks the document shape against the workflow JSON Schema
// and decodes it. Malformed JSON yields a DECODE_ERROR; shape violations
// yield a VALIDATION_ERROR whose details list every violation.
func DecodeWorkflow(data []byte) (*schema.Workflow, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "workflow is not valid JSON").WithCause(err)
	}

	sch, err := compiledWorkflowSchema()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "workflow schema unavailable").WithCause(err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, toFlowError(err)
	}

	var wf schema.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "failed to decode workflow").WithCause(err)
	}
	return &wf, nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// one readable entry per violation.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("workflow document has %d shape errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
