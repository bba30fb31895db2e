// Package providers implements the Provider interface for each supported AI
// backend: Anthropic (with prompt caching of the shared project context),
// Azure OpenAI, OpenAI, and a local Ollama server.
//
// Backends make a single attempt per call and report HTTP failures as
// "<status> | <body>" so [Client] can classify them. Client retries rate
// limits and transient failures with linear back-off capped at three times
// the base delay, and scrubs credentials from the final error. [WithCache]
// memoizes responses in the project's response cache.
//
// HTTP clients can be injected through Settings so that tests can redirect
// calls to local httptest servers without making live API requests.
//
// Use [New] to obtain a Provider by name.
package providers
