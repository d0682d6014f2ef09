// Package tool is the trusted boundary between model-issued tool calls and
// real side effects. The Gateway keeps a registry of adapters, validates every
// input and output against the schemas the adapter declares, and writes one
// audit entry per invocation.
package tool
