// Package llm provides an OpenAI-compatible chat client used to translate
// meeting transcripts into a configured target language.
//
// # Translation
//
// The client sends the transcript with a fixed translation system prompt and
// returns the model's rendering verbatim. Paragraph breaks and speaker labels
// are preserved by instruction, not post-processing.
//
// # Configuration
//
// Requires api_key and model, optionally base_url and timeout. When no key is
// configured the translate stage is disabled upstream and this client is
// never constructed.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Translate: translate a transcript into the target language.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 429/5xx errors with exponential backoff (base
// 1s, max 10s, up to 3 attempts by default), honoring Retry-After when
// present. Rejected API keys and other client errors surface immediately
// through the shared error taxonomy. Context cancellation aborts retries.
package llm
