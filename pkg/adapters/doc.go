// Package adapters provides the provider-agnostic generation contract and the
// shared HTTP/JSON plumbing used by the vendor adapters.
//
// Subpackages:
//   - openai
//   - anthropic
//   - gemini
//
// Adapters translate one GenerateRequest into one vendor call and normalize the
// reply into a GenerateResult. They never retry; failures are reported as
// *TransientError or *PermanentError so the caller can decide.
package adapters
