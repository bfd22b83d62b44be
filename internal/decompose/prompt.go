package decompose

import (
	"fmt"
	"sort"
	"strings"
)

// planPrompt is the prompt template for task slicing.
const planPrompt = `Slice this task into exactly 7 parallel pieces for the %s domain workers.

Task:
%s

Worker specializations (slice_id: focus):
%s
Default files (slice_id: file):
%s
Permitted actions:
%s
Forbidden actions:
%s
%s
Return ONLY a JSON array of 7 slices with this exact structure (no other text):
[
  {
    "slice_id": 1,
    "description": "Clear instructions for this slice",
    "assigned_file": "path/of/the/single/file/to/create"
  }
]

Rules:
- slice_id values are 1 through 7, each used exactly once
- Slices must be independent: no worker depends on another's output
- Match slices to worker specializations
- Each slice produces exactly one file; no two slices share a file
- Leave assigned_file empty to use the default file for that slice`

// PlanPrompt renders the slicing prompt for req.
func PlanPrompt(req PlanRequest) string {
	var ctxBlock string
	if len(req.Context) > 0 {
		ctxBlock = "\nRelevant memories:\n" + bullets(req.Context)
	}
	return fmt.Sprintf(planPrompt,
		req.Domain.Name,
		req.Task.Description,
		ordinalList(req.Domain.Specializations),
		ordinalList(req.Domain.Targets),
		bullets(req.Constraints.CanDo),
		bullets(req.Constraints.CannotDo),
		ctxBlock,
	)
}

func ordinalList(m map[int]string) string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%d: %s\n", k, m[k])
	}
	return b.String()
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none)\n"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return b.String()
}
