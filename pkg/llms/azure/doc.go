// Package azure implements llms.Model and llms.Embedder on top of the
// Azure OpenAI service, using the official OpenAI Go SDK.
package azure
