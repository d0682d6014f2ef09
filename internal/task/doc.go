// Package task implements the task state machine and the orchestrator that
// gates each goal through a clarification call before handing it to the
// agent runtime in the background.
package task
