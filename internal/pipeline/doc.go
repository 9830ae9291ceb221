// Package pipeline runs a batch of independent tasks on a bounded pool of
// workers and collects one Result per task in submission order.
//
// A failing task never aborts its siblings; only context cancellation stops
// dispatch. Each task is expected to honour ctx itself (external tools are
// started with exec.CommandContext).
package pipeline
