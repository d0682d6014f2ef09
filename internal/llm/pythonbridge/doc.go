// Package pythonbridge implements llm.Client by delegating each chat turn to
// an external script that speaks JSON over stdin/stdout.
package pythonbridge
