// Package llms provides the provider-neutral types used to talk to chat and
// embedding models: messages, call options, responses and the Model and
// Embedder interfaces implemented by the provider packages.
package llms
