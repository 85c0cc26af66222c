package llmfactory

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/callbacks"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/llms/azure"
	"github.com/effective-security/azurellm/pkg/llmutils"
	"github.com/effective-security/azurellm/pkg/metricskey"
	"github.com/google/uuid"
)

// ChatHandle invokes the chat deployment with the handle options and
// reports every call to the attached callbacks.
type ChatHandle struct {
	llm       llms.Model
	model     string
	options   []llms.CallOption
	callbacks []callbacks.Handler
	tags      []string
}

// LLM returns the underlying model client.
func (h *ChatHandle) LLM() llms.Model {
	return h.llm
}

// Options returns the effective handle options.
func (h *ChatHandle) Options() llms.CallOptions {
	return llms.NewCallOptions(h.options...)
}

// Callbacks returns the handlers attached to the handle,
// the tracing sink is first when tracing is enabled.
func (h *ChatHandle) Callbacks() []callbacks.Handler {
	return slices.Clone(h.callbacks)
}

// With returns a copy of the handle with opts applied after the handle options.
func (h *ChatHandle) With(opts ...llms.CallOption) *ChatHandle {
	c := *h
	c.options = append(slices.Clone(h.options), opts...)
	return &c
}

// Invoke sends prompt as a single human message and returns the reply text.
func (h *ChatHandle) Invoke(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	resp, err := h.Generate(ctx, []llms.Message{llms.HumanMessage(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}

// Stream is Generate with fn called for every received chunk.
func (h *ChatHandle) Stream(ctx context.Context, messages []llms.Message, fn func(ctx context.Context, chunk []byte) error, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	return h.Generate(ctx, messages, append(slices.Clone(opts), llms.WithStreamingFunc(fn))...)
}

// Generate sends messages to the model, opts override the handle options.
// Provider errors are returned unchanged.
func (h *ChatHandle) Generate(ctx context.Context, messages []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	all := append(slices.Clone(h.options), opts...)
	eff := llms.NewCallOptions(all...)

	name := h.llm.GetName()
	call := &callbacks.Call{
		ID:       newCallID(),
		Name:     name,
		Model:    h.model,
		Provider: h.llm.GetProviderType(),
		Started:  time.Now(),
		Params:   callParams(&eff),
		Tags:     h.tags,
	}
	fanout := callbacks.NewFanout(h.callbacks...)

	fanout.OnLLMStart(ctx, call, messages)
	resp, err := h.llm.GenerateContent(ctx, messages, all...)
	metricskey.PerfChatCall.MeasureSince(call.Started, name)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, name)
		fanout.OnLLMError(ctx, call, messages, err)
		return nil, err
	}

	bytesSent := llmutils.CountMessagesContentSize(messages)
	bytesReceived := llmutils.CountResponseContentSize(resp)
	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)

	metricskey.StatsLLMCallsSucceeded.IncrCounter(1, name)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), name)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), name)
	metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), name)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), name)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), name)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), name)

	fanout.OnLLMEnd(ctx, call, messages, resp)
	return resp, nil
}

// EmbeddingHandle invokes the embeddings deployment and reports every call
// to the attached callbacks.
type EmbeddingHandle struct {
	embedder  llms.Embedder
	model     string
	callbacks []callbacks.Handler
	tags      []string
}

// Embedder returns the underlying embedding client.
func (h *EmbeddingHandle) Embedder() llms.Embedder {
	return h.embedder
}

// Callbacks returns the handlers attached to the handle.
func (h *EmbeddingHandle) Callbacks() []callbacks.Handler {
	return slices.Clone(h.callbacks)
}

// EmbedQuery returns the vector for a single text.
func (h *EmbeddingHandle) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := h.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments returns one vector per text, in the order of texts.
func (h *EmbeddingHandle) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	name := h.embedder.GetName()
	call := &callbacks.Call{
		ID:       newCallID(),
		Name:     name,
		Model:    h.model,
		Provider: llms.ProviderAzure,
		Started:  time.Now(),
		Tags:     h.tags,
	}
	fanout := callbacks.NewFanout(h.callbacks...)

	fanout.OnEmbeddingStart(ctx, call, texts)
	vecs, err := h.embedder.CreateEmbedding(ctx, texts)
	metricskey.PerfEmbeddingCall.MeasureSince(call.Started, name)
	if err == nil && len(vecs) != len(texts) {
		err = errors.Wrapf(azure.ErrUnexpectedResponseLength, "expected %d vectors, got %d", len(texts), len(vecs))
	}
	if err != nil {
		metricskey.StatsEmbeddingCallsFailed.IncrCounter(1, name)
		fanout.OnEmbeddingError(ctx, call, texts, err)
		return nil, err
	}

	metricskey.StatsEmbeddingCallsSucceeded.IncrCounter(1, name)
	metricskey.StatsEmbeddingVectors.IncrCounter(float64(len(vecs)), name)

	fanout.OnEmbeddingEnd(ctx, call, texts, vecs)
	return vecs, nil
}

func callParams(o *llms.CallOptions) map[string]any {
	params := map[string]any{}
	if o.Model != "" {
		params["model"] = o.Model
	}
	if o.HasTemperature() {
		params["temperature"] = o.Temperature
	}
	if o.HasMaxTokens() {
		params["max_tokens"] = o.MaxTokens
	}
	if o.HasTopP() {
		params["top_p"] = o.TopP
	}
	if o.HasSeed() {
		params["seed"] = o.Seed
	}
	if o.HasFrequencyPenalty() {
		params["frequency_penalty"] = o.FrequencyPenalty
	}
	if o.HasPresencePenalty() {
		params["presence_penalty"] = o.PresencePenalty
	}
	if len(o.StopWords) > 0 {
		params["stop"] = o.StopWords
	}
	if o.StreamingFunc != nil {
		params["stream"] = true
	}
	return params
}

func newCallID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
