package comm

import (
	"fmt"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Well-known singleton agent IDs.
const (
	CommanderID = "commander"
	ReporterID  = "reporter"
	RecorderID  = "recorder"
)

// WorkerID returns the agent ID for a global worker ordinal.
func WorkerID(ordinal int) string {
	return fmt.Sprintf("worker-%d", ordinal)
}

// OrchestratorID returns the agent ID of a domain's orchestrator.
func OrchestratorID(domain string) string {
	return "orch-" + domain
}

// ValidatorID returns the agent ID of a domain's validator.
func ValidatorID(domain string) string {
	return "validator-" + domain
}

// RegisterRoster registers the full colony: the three singletons plus an
// orchestrator, a validator, and seven workers per domain.
// Existing IDs are left untouched.
func RegisterRoster(r *Registry, domains []models.DomainConfig) error {
	agents := []models.Agent{
		{ID: CommanderID, Role: models.RoleCommander},
		{ID: ReporterID, Role: models.RoleReporter},
		{ID: RecorderID, Role: models.RoleRecorder},
	}
	for _, d := range domains {
		agents = append(agents,
			models.Agent{ID: OrchestratorID(d.Name), Role: models.RoleOrchestrator, Domain: d.Name},
			models.Agent{ID: ValidatorID(d.Name), Role: models.RoleValidator, Domain: d.Name},
		)
		for _, w := range d.Workers {
			agents = append(agents, models.Agent{
				ID:      WorkerID(w),
				Role:    models.RoleWorker,
				Domain:  d.Name,
				Ordinal: w,
			})
		}
	}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
