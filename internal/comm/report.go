package comm

import (
	"sort"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Report summarizes compliance across the registry.
type Report struct {
	TotalViolations int                 `json:"total_violations"`
	ByRole          map[models.Role]int `json:"by_role"`
	TopOffenders    []models.Agent      `json:"top_offenders"`
	AtRisk          []models.Agent      `json:"at_risk"`
	Revoked         []models.Agent      `json:"revoked"`
}

// BuildReport computes a compliance report. At most topN offenders are listed.
func (r *Registry) BuildReport(topN int) Report {
	rep := Report{ByRole: make(map[models.Role]int)}
	var offenders []models.Agent
	for _, a := range r.All() {
		if a.ViolationCount == 0 {
			continue
		}
		rep.TotalViolations += a.ViolationCount
		rep.ByRole[a.Role] += a.ViolationCount
		offenders = append(offenders, a)
		switch a.State {
		case models.AgentStateRevoked:
			rep.Revoked = append(rep.Revoked, a)
		case models.AgentStateWarned2:
			rep.AtRisk = append(rep.AtRisk, a)
		}
	}
	sort.SliceStable(offenders, func(i, j int) bool {
		return offenders[i].ViolationCount > offenders[j].ViolationCount
	})
	if topN > 0 && len(offenders) > topN {
		offenders = offenders[:topN]
	}
	rep.TopOffenders = offenders
	return rep
}
