package opik

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/callbacks"
	"github.com/effective-security/azurellm/pkg/config"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/llmutils"
	"github.com/effective-security/azurellm/pkg/metricskey"
	"github.com/effective-security/azurellm/pkg/tracing"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "opik")

// BackendName is the name the back-end registers with.
const BackendName = "opik"

// DefaultTags are attached to every trace.
var DefaultTags = []string{"azure-openai"}

const (
	tracesPath = "/v1/private/traces/batch"
	spansPath  = "/v1/private/spans/batch"

	chatTraceName      = "AzureChatOpenAI"
	embeddingTraceName = "AzureOpenAIEmbeddings"

	defaultTimeout   = 10 * time.Second
	defaultQueueSize = 1000
)

func init() {
	tracing.Register(BackendName, func(cfg *config.Config) (tracing.Sink, error) {
		return New(cfg)
	})
}

// Option configures Tracer.
type Option func(*Tracer)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Tracer) {
		t.httpClient = client
	}
}

// WithBatchSize sets the number of calls collected before delivery,
// values below 2 deliver every call when it ends.
func WithBatchSize(size int) Option {
	return func(t *Tracer) {
		t.batchSize = size
	}
}

// WithQueueSize sets the number of calls buffered for delivery,
// calls recorded while the buffer is full are dropped.
func WithQueueSize(size int) Option {
	return func(t *Tracer) {
		t.queueSize = size
	}
}

// WithTags appends tags attached to every trace.
func WithTags(tags ...string) Option {
	return func(t *Tracer) {
		t.tags = append(t.tags, tags...)
	}
}

// Tracer is a tracing.Sink that posts traces and spans to Opik.
// Calls are recorded into a buffer and delivered by a background worker,
// so recording never waits on the network.
type Tracer struct {
	baseURL    string
	workspace  string
	project    string
	apiKey     string
	tags       []string
	batchSize  int
	queueSize  int
	httpClient *http.Client

	queue   chan entry
	flushes chan flushRequest
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// owned by the worker
	traces []trace
	spans  []span
}

// entry is one recorded call.
type entry struct {
	trace trace
	span  span
}

type flushRequest struct {
	ctx   context.Context
	reply chan error
}

var _ tracing.Sink = (*Tracer)(nil)

// New returns Opik tracer for cfg.
func New(cfg *config.Config, opts ...Option) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("opik: configuration is required")
	}
	u, err := url.Parse(cfg.TracingURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("opik: invalid URL %q", cfg.TracingURL)
	}

	t := &Tracer{
		baseURL:    strings.TrimSuffix(cfg.TracingURL, "/"),
		workspace:  cfg.Workspace,
		project:    cfg.ProjectName,
		apiKey:     cfg.TracingAPIKey,
		tags:       append([]string{}, DefaultTags...),
		batchSize:  1,
		queueSize:  defaultQueueSize,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.queueSize < 1 {
		t.queueSize = 1
	}

	t.queue = make(chan entry, t.queueSize)
	t.flushes = make(chan flushRequest)
	t.done = make(chan struct{})
	t.stopped = make(chan struct{})
	go t.run()
	return t, nil
}

// Name returns "opik".
func (t *Tracer) Name() string {
	return BackendName
}

// ProjectName returns the project traces are logged to.
func (t *Tracer) ProjectName() string {
	return t.project
}

// Tags returns the tags attached to every trace.
func (t *Tracer) Tags() []string {
	return append([]string{}, t.tags...)
}

func (t *Tracer) OnLLMStart(ctx context.Context, call *callbacks.Call, messages []llms.Message) {}

func (t *Tracer) OnLLMEnd(ctx context.Context, call *callbacks.Call, messages []llms.Message, resp *llms.ContentResponse) {
	in, out, total := llmutils.CountTokens(resp)
	output := map[string]any{"content": resp.Content()}
	if resp != nil && len(resp.Choices) > 0 && resp.Choices[0] != nil {
		output["stop_reason"] = resp.Choices[0].StopReason
	}
	usage := map[string]int{
		"prompt_tokens":     int(in),
		"completion_tokens": int(out),
		"total_tokens":      int(total),
	}
	t.record(ctx, call, chatTraceName, map[string]any{"messages": messages}, output, usage, nil)
}

func (t *Tracer) OnLLMError(ctx context.Context, call *callbacks.Call, messages []llms.Message, err error) {
	t.record(ctx, call, chatTraceName, map[string]any{"messages": messages}, nil, nil, err)
}

func (t *Tracer) OnEmbeddingStart(ctx context.Context, call *callbacks.Call, texts []string) {}

func (t *Tracer) OnEmbeddingEnd(ctx context.Context, call *callbacks.Call, texts []string, vectors [][]float32) {
	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	output := map[string]any{
		"vectors":    len(vectors),
		"dimensions": dims,
	}
	t.record(ctx, call, embeddingTraceName, map[string]any{"texts": texts}, output, nil, nil)
}

func (t *Tracer) OnEmbeddingError(ctx context.Context, call *callbacks.Call, texts []string, err error) {
	t.record(ctx, call, embeddingTraceName, map[string]any{"texts": texts}, nil, nil, err)
}

func (t *Tracer) record(ctx context.Context, call *callbacks.Call, name string, input, output map[string]any, usage map[string]int, callErr error) {
	ended := time.Now().UTC()
	started := call.Started.UTC()
	if call.Started.IsZero() {
		started = ended
	}

	traceID := call.ID
	if _, err := uuid.Parse(traceID); err != nil {
		traceID = newID()
	}

	tags := append(t.Tags(), call.Tags...)
	metadata := map[string]any{
		"deployment": call.Name,
	}
	for k, v := range call.Params {
		metadata[k] = v
	}

	var ei *errorInfo
	if callErr != nil {
		ei = &errorInfo{
			ExceptionType: fmt.Sprintf("%T", errors.UnwrapAll(callErr)),
			Message:       callErr.Error(),
			Traceback:     fmt.Sprintf("%+v", callErr),
		}
	}

	tr := trace{
		ID:          traceID,
		ProjectName: t.project,
		Name:        name,
		StartTime:   started,
		EndTime:     ended,
		Input:       input,
		Output:      output,
		Metadata:    metadata,
		Tags:        tags,
		ErrorInfo:   ei,
	}
	sp := span{
		ID:          newID(),
		TraceID:     traceID,
		ProjectName: t.project,
		Name:        call.Name,
		Type:        "llm",
		StartTime:   started,
		EndTime:     ended,
		Input:       input,
		Output:      output,
		Metadata:    metadata,
		Model:       call.Model,
		Provider:    strings.ToLower(string(call.Provider)),
		Tags:        tags,
		Usage:       usage,
		ErrorInfo:   ei,
	}

	select {
	case <-t.done:
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "closed", "trace_id", traceID)
		return
	default:
	}

	select {
	case t.queue <- entry{trace: tr, span: sp}:
	default:
		metricskey.StatsTracingFailed.IncrCounter(1, BackendName)
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "queue_full",
			"trace_id", traceID)
	}
}

func (t *Tracer) run() {
	defer close(t.stopped)
	for {
		select {
		case e := <-t.queue:
			t.add(e)
			if len(t.traces) >= t.batchSize {
				t.deliverInBackground()
			}
		case req := <-t.flushes:
			t.drain()
			req.reply <- t.deliver(req.ctx)
		case <-t.done:
			t.drain()
			t.deliverInBackground()
			return
		}
	}
}

func (t *Tracer) add(e entry) {
	t.traces = append(t.traces, e.trace)
	t.spans = append(t.spans, e.span)
}

// drain moves the buffered calls to the pending batch.
func (t *Tracer) drain() {
	for {
		select {
		case e := <-t.queue:
			t.add(e)
		default:
			return
		}
	}
}

func (t *Tracer) deliverInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := t.deliver(ctx); err != nil {
		logger.KV(xlog.WARNING, "reason", "deliver", "err", err.Error())
	}
}

// deliver posts the pending batch.
// Pending items are dropped when delivery fails.
func (t *Tracer) deliver(ctx context.Context) error {
	traces, spans := t.traces, t.spans
	t.traces, t.spans = nil, nil

	if len(traces) == 0 {
		return nil
	}

	err := t.post(ctx, tracesPath, traceBatch{Traces: traces})
	if err == nil {
		err = t.post(ctx, spansPath, spanBatch{Spans: spans})
	}
	if err != nil {
		metricskey.StatsTracingFailed.IncrCounter(1, BackendName)
		return err
	}
	logger.KV(xlog.DEBUG, "status", "delivered", "traces", len(traces))
	return nil
}

// Flush delivers the calls recorded so far and waits for the delivery.
// Pending items are dropped when delivery fails.
func (t *Tracer) Flush(ctx context.Context) error {
	req := flushRequest{ctx: ctx, reply: make(chan error, 1)}
	select {
	case t.flushes <- req:
	case <-t.stopped:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// Close delivers pending calls and stops the worker.
// It is safe to call Close more than once.
func (t *Tracer) Close(ctx context.Context) error {
	err := t.Flush(ctx)
	t.once.Do(func() {
		close(t.done)
	})
	select {
	case <-t.stopped:
	case <-ctx.Done():
		if err == nil {
			err = errors.WithStack(ctx.Err())
		}
	}
	return err
}

func (t *Tracer) post(ctx context.Context, path string, body any) error {
	js, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode batch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(js))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if t.workspace != "" {
		req.Header.Set("Comet-Workspace", t.workspace)
	}
	if t.apiKey != "" {
		req.Header.Set("authorization", t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("opik: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
