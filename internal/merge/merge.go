// Package merge combines validated worker outputs into one artifact map.
// Merge is a pure function: the same outputs and validations always give
// the same artifacts and conflicts.
package merge

import (
	"fmt"
	"sort"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

// ConflictKey is the artifact key under which a losing variant is kept.
func ConflictKey(target string, ordinal int) string {
	return fmt.Sprintf("%s#conflict-w%d", target, ordinal)
}

type variant struct {
	ordinal int
	content string
}

// Merge builds the MergedResult for a task. Only PASSED outputs contribute
// artifacts. Colliding targets are unioned when mergeable or identical;
// otherwise the lowest ordinal keeps the target and every other variant is
// retained under ConflictKey.
func Merge(taskID string, dc models.DomainConfig, outputs []models.WorkerOutput, validations []models.ValidationResult) models.MergedResult {
	outs := append([]models.WorkerOutput(nil), outputs...)
	sort.SliceStable(outs, func(i, j int) bool { return outs[i].WorkerOrdinal < outs[j].WorkerOrdinal })
	vals := append([]models.ValidationResult(nil), validations...)
	sort.SliceStable(vals, func(i, j int) bool { return vals[i].WorkerOrdinal < vals[j].WorkerOrdinal })

	passed := make(map[string]bool)
	total := 0
	for _, v := range vals {
		total += len(v.Violations)
		if v.Status == models.ValidationPassed {
			passed[v.SliceID] = true
		}
	}

	byTarget := make(map[string][]variant)
	for _, o := range outs {
		if !passed[o.SliceID] {
			continue
		}
		for _, f := range o.Deliverable.Files() {
			p := models.CleanPath(f.Path)
			if p == "" {
				continue
			}
			byTarget[p] = append(byTarget[p], variant{ordinal: o.WorkerOrdinal, content: f.Content})
		}
	}

	targets := make([]string, 0, len(byTarget))
	for t := range byTarget {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	artifacts := make(map[string]string, len(targets))
	var conflicts []models.Conflict
	for _, target := range targets {
		vs := byTarget[target]
		if len(vs) == 1 || allIdentical(vs) {
			artifacts[target] = vs[0].content
			continue
		}
		if IsMergeable(target, dc.SharedTargets) {
			contents := make([]string, len(vs))
			for i, v := range vs {
				contents[i] = v.content
			}
			artifacts[target] = UnionLines(contents)
			continue
		}

		c := models.Conflict{Target: target, Winner: vs[0].ordinal}
		artifacts[target] = vs[0].content
		// One worker may list a target twice; each extra variant gets its
		// own key.
		keys := make(map[int]int)
		for i, v := range vs {
			if n := len(c.Ordinals); n == 0 || c.Ordinals[n-1] != v.ordinal {
				c.Ordinals = append(c.Ordinals, v.ordinal)
			}
			if i == 0 || v.content == vs[0].content {
				continue
			}
			key := ConflictKey(target, v.ordinal)
			if n := keys[v.ordinal]; n > 0 {
				key = fmt.Sprintf("%s-%d", key, n+1)
			}
			keys[v.ordinal]++
			artifacts[key] = v.content
			c.Retained = append(c.Retained, key)
		}
		conflicts = append(conflicts, c)
	}

	return models.MergedResult{
		TaskID:          taskID,
		Domain:          dc.Name,
		Outputs:         outs,
		Validations:     vals,
		Conflicts:       conflicts,
		Artifacts:       artifacts,
		TotalViolations: total,
	}
}

// ConflictError returns an error wrapping ErrConflictDetected when m has
// conflicts, or nil.
func ConflictError(m models.MergedResult) error {
	if len(m.Conflicts) == 0 {
		return nil
	}
	targets := make([]string, len(m.Conflicts))
	for i, c := range m.Conflicts {
		targets[i] = c.Target
	}
	return fmt.Errorf("task %s: %d conflicting targets %v: %w", m.TaskID, len(targets), targets, errs.ErrConflictDetected)
}

func allIdentical(vs []variant) bool {
	for _, v := range vs[1:] {
		if v.content != vs[0].content {
			return false
		}
	}
	return true
}
