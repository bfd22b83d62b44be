package comm

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/colony/pkg/models"
)

// survivalNotice is injected into an agent's next directive after a
// violation that did not revoke it.
func survivalNotice(a models.Agent, reason string, threshold int) string {
	remaining := threshold - a.ViolationCount
	var b strings.Builder
	if remaining <= 1 {
		fmt.Fprintf(&b, "CRITICAL: violation %d of %d. One more violation and your messaging privileges are revoked permanently.\n", a.ViolationCount, threshold)
	} else {
		fmt.Fprintf(&b, "WARNING: violation %d of %d. %d more and your messaging privileges are revoked permanently.\n", a.ViolationCount, threshold, remaining)
	}
	fmt.Fprintf(&b, "Last denied send: %s\n", reason)
	b.WriteString(allowedTargets(a.Role))
	return b.String()
}

// allowedTargets summarizes who a role may message under the default hierarchy.
func allowedTargets(role models.Role) string {
	var targets []string
	for _, e := range DefaultEdges() {
		if e.From != role {
			continue
		}
		t := string(e.To)
		if e.SameDomain {
			t += " (same domain)"
		}
		targets = append(targets, t)
	}
	targets = append(targets, "recorder")
	return "You may message: " + strings.Join(targets, ", ")
}

// deathNotice is broadcast to active agents when an agent is revoked.
func deathNotice(a models.Agent, threshold int) string {
	scope := "no domain"
	if a.Domain != "" {
		scope = "domain " + a.Domain
	}
	return fmt.Sprintf("Agent %s (%s, %s) has been revoked after %d policy violations. "+
		"Do not route work or messages to it. Violation limit for every agent is %d.",
		a.ID, a.Role, scope, a.ViolationCount, threshold)
}
