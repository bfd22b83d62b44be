// Package tui renders a live dashboard for a single colony run: the seven
// slices of the task, agent standing with the message gate, and the event
// log. It is driven entirely by orchestrator events.
package tui
