// Package comm enforces the colony's communication hierarchy.
//
// Every inter-agent send passes through a Gate, which consults the
// PolicyGraph and the Registry before anything reaches the transport.
package comm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Endpoint is the (role, domain) pair the policy graph reasons about.
type Endpoint struct {
	Role   models.Role
	Domain string
}

// EndpointOf returns the endpoint for a registered agent.
func EndpointOf(a models.Agent) Endpoint {
	return Endpoint{Role: a.Role, Domain: a.Domain}
}

// Edge permits traffic from one role to another.
type Edge struct {
	From models.Role `json:"from" yaml:"from"`
	To   models.Role `json:"to" yaml:"to"`
	// SameDomain restricts the edge to endpoints sharing a domain.
	SameDomain bool `json:"same_domain" yaml:"same_domain"`
}

// String renders the edge in the form accepted by ParseEdge.
func (e Edge) String() string {
	if e.SameDomain {
		return fmt.Sprintf("%s->%s:same_domain", e.From, e.To)
	}
	return fmt.Sprintf("%s->%s", e.From, e.To)
}

// ParseEdge parses "worker->orchestrator:same_domain" style edges.
func ParseEdge(s string) (Edge, error) {
	s = strings.TrimSpace(s)
	from, rest, ok := strings.Cut(s, "->")
	if !ok {
		return Edge{}, fmt.Errorf("edge %q: missing ->", s)
	}
	to, qualifier, hasQualifier := strings.Cut(rest, ":")
	e := Edge{
		From: models.Role(strings.TrimSpace(from)),
		To:   models.Role(strings.TrimSpace(to)),
	}
	if !e.From.Valid() || !e.To.Valid() {
		return Edge{}, fmt.Errorf("edge %q: unknown role", s)
	}
	if hasQualifier {
		if strings.TrimSpace(qualifier) != "same_domain" {
			return Edge{}, fmt.Errorf("edge %q: unknown qualifier %q", s, qualifier)
		}
		e.SameDomain = true
	}
	return e, nil
}

// DefaultEdges is the standard colony hierarchy.
// Orchestrators do not talk to the commander except through the
// escalation exception.
func DefaultEdges() []Edge {
	return []Edge{
		{From: models.RoleCommander, To: models.RoleOrchestrator},
		{From: models.RoleOrchestrator, To: models.RoleWorker, SameDomain: true},
		{From: models.RoleOrchestrator, To: models.RoleValidator, SameDomain: true},
		{From: models.RoleWorker, To: models.RoleOrchestrator, SameDomain: true},
		{From: models.RoleWorker, To: models.RoleWorker, SameDomain: true},
		{From: models.RoleWorker, To: models.RoleValidator, SameDomain: true},
		{From: models.RoleValidator, To: models.RoleOrchestrator, SameDomain: true},
		{From: models.RoleValidator, To: models.RoleReporter},
		{From: models.RoleReporter, To: models.RoleCommander},
		{From: models.RoleReporter, To: models.RoleRecorder},
		{From: models.RoleRecorder, To: models.RoleCommander},
	}
}

type edgeKey struct {
	from models.Role
	to   models.Role
}

// PolicyGraph is an immutable permission relation over endpoints.
type PolicyGraph struct {
	edges map[edgeKey]Edge
}

// NewPolicyGraph builds a graph from edges. When the same role pair
// appears twice, the less restrictive edge wins.
func NewPolicyGraph(edges []Edge) *PolicyGraph {
	g := &PolicyGraph{edges: make(map[edgeKey]Edge, len(edges))}
	for _, e := range edges {
		k := edgeKey{e.From, e.To}
		if existing, ok := g.edges[k]; ok && !existing.SameDomain {
			continue
		}
		g.edges[k] = e
	}
	return g
}

// DefaultPolicyGraph returns the graph built from DefaultEdges.
func DefaultPolicyGraph() *PolicyGraph {
	return NewPolicyGraph(DefaultEdges())
}

// Allows reports whether the hierarchy permits from -> to.
func (g *PolicyGraph) Allows(from, to Endpoint) bool {
	e, ok := g.edges[edgeKey{from.Role, to.Role}]
	if !ok {
		return false
	}
	if e.SameDomain {
		return from.Domain != "" && from.Domain == to.Domain
	}
	return true
}

// Edges returns the graph's edges in a stable order.
func (g *PolicyGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// exception reports whether a send matches the narrow whitelist that
// bypasses the hierarchy, and names the rule that matched.
func exception(from, to Endpoint, channel string) (string, bool) {
	if to.Role == models.RoleRecorder {
		return "any agent may write to the recorder", true
	}
	if to.Role == models.RoleCommander && channel == models.ChannelEscalation &&
		(from.Role == models.RoleOrchestrator || from.Role == models.RoleValidator) {
		return "escalation to commander", true
	}
	return "", false
}
