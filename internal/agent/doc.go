// Package agent contains the tool-use loop that drives a single task to
// completion. The Runtime loads the task's skill prompt, exposes the
// gateway's tools to the model under API-safe names, executes requested tool
// calls concurrently and feeds their results back until the model stops or
// the iteration cap is reached.
package agent
