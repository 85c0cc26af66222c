package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/llmutils"
	"github.com/effective-security/xlog"
)

// Handler is notified around model calls.
type Handler interface {
	OnLLMStart(ctx context.Context, call *Call, messages []llms.Message)
	OnLLMEnd(ctx context.Context, call *Call, messages []llms.Message, resp *llms.ContentResponse)
	OnLLMError(ctx context.Context, call *Call, messages []llms.Message, err error)

	OnEmbeddingStart(ctx context.Context, call *Call, texts []string)
	OnEmbeddingEnd(ctx context.Context, call *Call, texts []string, vectors [][]float32)
	OnEmbeddingError(ctx context.Context, call *Call, texts []string, err error)
}

// ensure that the callbacks implement the correct interfaces
var (
	_ Handler = (*Noop)(nil)
	_ Handler = (*Printer)(nil)
	_ Handler = (*PackageLogger)(nil)
	_ Handler = (*Fanout)(nil)
)

// Call describes a single model invocation.
// The same Call is passed to the start and the end or error events.
type Call struct {
	// ID is unique per invocation.
	ID string
	// Name is the deployment name the client is bound to.
	Name string
	// Model is the model name behind the deployment.
	Model string
	// Provider is the provider type of the client.
	Provider llms.ProviderType
	// Started is the time the call started.
	Started time.Time
	// Params holds the effective call parameters, e.g. temperature.
	Params map[string]any
	// Tags are attached to traces.
	Tags []string
}

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []Handler
}

// NewFanout returns Fanout, nil handlers are skipped.
func NewFanout(callbacks ...Handler) *Fanout {
	f := &Fanout{}
	for _, cb := range callbacks {
		f.Add(cb)
	}
	return f
}

func (l *Fanout) Add(callback Handler) {
	if callback != nil {
		l.callbacks = append(l.callbacks, callback)
	}
}

// Len returns the number of handlers.
func (l *Fanout) Len() int {
	return len(l.callbacks)
}

func (l *Fanout) OnLLMStart(ctx context.Context, call *Call, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMStart(ctx, call, messages)
	}
}

func (l *Fanout) OnLLMEnd(ctx context.Context, call *Call, messages []llms.Message, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMEnd(ctx, call, messages, resp)
	}
}

func (l *Fanout) OnLLMError(ctx context.Context, call *Call, messages []llms.Message, err error) {
	for _, callback := range l.callbacks {
		callback.OnLLMError(ctx, call, messages, err)
	}
}

func (l *Fanout) OnEmbeddingStart(ctx context.Context, call *Call, texts []string) {
	for _, callback := range l.callbacks {
		callback.OnEmbeddingStart(ctx, call, texts)
	}
}

func (l *Fanout) OnEmbeddingEnd(ctx context.Context, call *Call, texts []string, vectors [][]float32) {
	for _, callback := range l.callbacks {
		callback.OnEmbeddingEnd(ctx, call, texts, vectors)
	}
}

func (l *Fanout) OnEmbeddingError(ctx context.Context, call *Call, texts []string, err error) {
	for _, callback := range l.callbacks {
		callback.OnEmbeddingError(ctx, call, texts, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnLLMStart(ctx context.Context, call *Call, messages []llms.Message) {}
func (l *Noop) OnLLMEnd(ctx context.Context, call *Call, messages []llms.Message, resp *llms.ContentResponse) {
}
func (l *Noop) OnLLMError(ctx context.Context, call *Call, messages []llms.Message, err error) {}
func (l *Noop) OnEmbeddingStart(ctx context.Context, call *Call, texts []string) {}
func (l *Noop) OnEmbeddingEnd(ctx context.Context, call *Call, texts []string, vectors [][]float32) {
}
func (l *Noop) OnEmbeddingError(ctx context.Context, call *Call, texts []string, err error) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnLLMStart(ctx context.Context, call *Call, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Start: %s, %d messages\n", call.Name, len(messages))
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, messages)
	}
}

func (l *Printer) OnLLMEnd(ctx context.Context, call *Call, messages []llms.Message, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	in, out, total := llmutils.CountTokens(resp)
	fmt.Fprintf(l.Out, "LLM End: %s, tokens %d/%d/%d, %s\n", call.Name, in, out, total, time.Since(call.Started).Round(time.Millisecond))
	if l.Mode == ModeVerbose && resp != nil {
		for _, choice := range resp.Choices {
			if choice.Content != "" {
				fmt.Fprintln(l.Out, choice.Content)
			}
		}
	}
}

func (l *Printer) OnLLMError(ctx context.Context, call *Call, messages []llms.Message, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Error: %s: %s\n", call.Name, err.Error())
}

func (l *Printer) OnEmbeddingStart(ctx context.Context, call *Call, texts []string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Embedding Start: %s, %d texts\n", call.Name, len(texts))
}

func (l *Printer) OnEmbeddingEnd(ctx context.Context, call *Call, texts []string, vectors [][]float32) {
	l.lock.Lock()
	defer l.lock.Unlock()
	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	fmt.Fprintf(l.Out, "Embedding End: %s, %d vectors of %d\n", call.Name, len(vectors), dims)
}

func (l *Printer) OnEmbeddingError(ctx context.Context, call *Call, texts []string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Embedding Error: %s: %s\n", call.Name, err.Error())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnLLMStart(ctx context.Context, call *Call, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_start",
		"id", call.ID,
		"deployment", call.Name,
		"messages", len(messages),
		"question", llmutils.FindLastUserQuestion(messages),
		"params", llmutils.ToJSON(call.Params),
	)
}

func (l *PackageLogger) OnLLMEnd(ctx context.Context, call *Call, messages []llms.Message, resp *llms.ContentResponse) {
	in, out, total := llmutils.CountTokens(resp)
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_end",
		"id", call.ID,
		"deployment", call.Name,
		"input_tokens", in,
		"output_tokens", out,
		"total_tokens", total,
		"elapsed", time.Since(call.Started).String(),
	)
}

func (l *PackageLogger) OnLLMError(ctx context.Context, call *Call, messages []llms.Message, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "llm_error",
		"id", call.ID,
		"deployment", call.Name,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnEmbeddingStart(ctx context.Context, call *Call, texts []string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "embedding_start",
		"id", call.ID,
		"deployment", call.Name,
		"texts", len(texts),
	)
}

func (l *PackageLogger) OnEmbeddingEnd(ctx context.Context, call *Call, texts []string, vectors [][]float32) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "embedding_end",
		"id", call.ID,
		"deployment", call.Name,
		"vectors", len(vectors),
		"elapsed", time.Since(call.Started).String(),
	)
}

func (l *PackageLogger) OnEmbeddingError(ctx context.Context, call *Call, texts []string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "embedding_error",
		"id", call.ID,
		"deployment", call.Name,
		"err", err.Error(),
	)
}
