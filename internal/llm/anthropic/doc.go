// Package anthropic implements llm.Client on top of the Anthropic Messages
// API. The default endpoint is the OpenRouter Anthropic-compatible gateway.
package anthropic
