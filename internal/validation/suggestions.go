package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

const (
	// typeMatchThreshold is the minimum similarity for a "did you mean" hint.
	typeMatchThreshold = 0.6
	// largeWorkflow is the node count above which decomposition is suggested.
	largeWorkflow = 20
)

const connectionExample = `Connections are keyed by node name, not id: "connections": {"Webhook": {"main": [[{"node": "Set", "type": "main", "index": 0}]]}}`

// commonTypes seeds "did you mean" hints when the catalog cannot list types.
var commonTypes = []string{
	catalog.PackageBase + ".webhook",
	catalog.PackageBase + ".manualTrigger",
	catalog.PackageBase + ".scheduleTrigger",
	catalog.PackageBase + ".formTrigger",
	catalog.PackageBase + ".httpRequest",
	catalog.PackageBase + ".code",
	catalog.PackageBase + ".set",
	catalog.PackageBase + ".if",
	catalog.PackageBase + ".switch",
	catalog.PackageBase + ".filter",
	catalog.PackageBase + ".merge",
	catalog.PackageBase + ".splitInBatches",
	catalog.PackageBase + ".wait",
	catalog.PackageBase + ".respondToWebhook",
	catalog.PackageBase + ".executeWorkflow",
	catalog.PackageBase + ".postgres",
	catalog.PackageBase + ".mySql",
	catalog.PackageBase + ".mongoDb",
	catalog.PackageBase + ".slack",
	catalog.PackageBase + ".googleSheets",
	catalog.PackageBase + ".gmail",
	catalog.PackageBase + ".emailSend",
	catalog.PackageBase + ".noOp",
	catalog.PackageLangChain + ".agent",
	catalog.PackageLangChain + ".chainLlm",
	catalog.PackageLangChain + ".chatTrigger",
	catalog.PackageLangChain + ".lmChatOpenAi",
	catalog.PackageLangChain + ".lmChatAnthropic",
	catalog.PackageLangChain + ".memoryBufferWindow",
	catalog.PackageLangChain + ".toolHttpRequest",
	catalog.PackageLangChain + ".toolCode",
	catalog.PackageLangChain + ".toolVectorStore",
	catalog.PackageLangChain + ".vectorStoreInMemory",
	catalog.PackageLangChain + ".embeddingsOpenAi",
}

// closestType returns the candidate most similar to nodeType, comparing both
// the full spelling and the part after the package prefix, or "" when nothing
// reaches typeMatchThreshold. Ties go to the lexically smallest candidate.
func closestType(nodeType string, candidates []string) string {
	in := strings.ToLower(catalog.Canonical(strings.TrimSpace(nodeType)))
	if in == "" {
		return ""
	}
	inLocal := strings.ToLower(schema.LocalType(in))

	uniq := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		uniq[catalog.Canonical(c)] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for c := range uniq {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	best, bestScore := "", 0.0
	for _, c := range sorted {
		lower := strings.ToLower(c)
		score := levenshtein.Similarity(in, lower, nil)
		if s := levenshtein.Similarity(inLocal, strings.ToLower(schema.LocalType(lower)), nil); s > score {
			score = s
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < typeMatchThreshold {
		return ""
	}
	return best
}

// suggest adds the workflow-level suggestions derived from statistics and
// issue patterns.
func (r *run) suggest() {
	if hasConnectionError(r.res) {
		r.res.Suggest(connectionExample)
	}
	if len(r.executable) > 0 && r.stats.TriggerNodes == 0 {
		r.res.Suggest("Add a trigger node such as Webhook, Schedule Trigger or Manual Trigger so the workflow can start")
	}
	if r.stats.TotalNodes > largeWorkflow {
		r.res.Suggest(fmt.Sprintf("This workflow has %d nodes; consider splitting it into sub-workflows called through Execute Workflow", r.stats.TotalNodes))
	}
	r.aggregateErrorHandling()
}

func hasConnectionError(res *schema.ValidationResult) bool {
	for _, is := range res.Errors {
		switch is.Code {
		case schema.CodeConnectionUsesID, schema.CodeUnknownSource, schema.CodeUnknownTarget, schema.CodeNoConnections:
			return true
		}
	}
	return false
}

// aggregateErrorHandling replaces per-node error handling warnings with one
// suggestion when most checked nodes lack error handling.
func (r *run) aggregateErrorHandling() {
	if len(r.unhandled) < 2 || len(r.unhandled)*2 <= r.checked {
		return
	}
	kept := make([]schema.ValidationIssue, 0, len(r.res.Warnings))
	for _, w := range r.res.Warnings {
		if w.Code != schema.CodeErrorHandlingMissing {
			kept = append(kept, w)
		}
	}
	r.res.Warnings = kept
	r.res.Suggest(fmt.Sprintf(
		"%d of %d nodes have no error handling (%s); set onError and retryOnFail on nodes that call external services, or add an Error Trigger workflow",
		len(r.unhandled), r.checked, strings.Join(r.unhandled, ", ")))
}
