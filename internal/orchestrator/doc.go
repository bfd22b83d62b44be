// Package orchestrator runs tasks through the colony pipeline.
//
// A task is classified to a domain, cut into seven slices, and fanned out to
// the domain's worker pool. The coordinator dispatches every slice
// concurrently under a per-slice deadline and joins the results; worker
// chatter passes the message gate before delivery. Outputs are validated
// against each slice's constraint snapshot, merged deterministically and
// scored. Friction reports feed the rule adaptation engine; reports that
// exceed a domain's authority go to the commander through the escalation
// router.
//
// Example usage:
//
//	eng, err := orchestrator.New(ctx, orchestrator.Config{
//		Domains:  config.DefaultDomains(),
//		Executor: executor.NewEcho(),
//	})
//	res, err := eng.Run(ctx, "Build a signup form", "web")
package orchestrator
