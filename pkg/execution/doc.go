// Package execution runs nodes against a remote generation service.
//
// The Controller starts a job for a node, then polls its status on a fixed
// interval, mirroring progress and stage onto the node until the job completes,
// fails, times out or is cancelled. Each node has at most one live task;
// responses that arrive after a cancel are discarded.
//
// Example:
//
//	ctrl := execution.New(g, jobs, execution.WithHooks(hooks))
//	jobID, err := ctrl.Start(ctx, "story-1")
//	...
//	err = ctrl.Cancel(ctx, "story-1")
package execution
