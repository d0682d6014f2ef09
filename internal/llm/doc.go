// Package llm defines the provider-neutral chat contract used by the agent
// runtime and the clarification gate: turn-based messages made of text,
// tool_use and tool_result blocks, tool specifications, and a normalized
// response carrying the stop reason, text and requested tool calls.
// Provider implementations live in sub-packages and translate to and from
// their SDKs; errors surface as coded errors with a stable kind.
package llm
