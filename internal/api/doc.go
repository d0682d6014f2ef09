// Package api exposes the orchestrator over a small JSON HTTP surface:
// submit, status, result and resume, plus listing, stats, tools, health and
// Prometheus metrics.
package api
