package llmfactory

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/callbacks"
	"github.com/effective-security/azurellm/pkg/config"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/llms/azure"
	"github.com/effective-security/azurellm/pkg/tracing"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "llmfactory")

// Chat defaults
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// NewChatLLM is a wrapper for CreateChatLLM to allow for overriding the default implementation.
var NewChatLLM = CreateChatLLM

// NewEmbedder is a wrapper for CreateEmbedder to allow for overriding the default implementation.
var NewEmbedder = CreateEmbedder

// CreateChatLLM returns Azure chat client bound to the chat deployment.
func CreateChatLLM(cfg *config.Config, httpClient *http.Client) (llms.Model, error) {
	return azure.NewChat(
		azure.WithEndpoint(cfg.Endpoint),
		azure.WithAPIKey(cfg.APIKey),
		azure.WithAPIVersion(cfg.APIVersion),
		azure.WithDeployment(cfg.ChatDeployment),
		azure.WithModelName(cfg.ChatModel),
		azure.WithHTTPClient(httpClient),
	)
}

// CreateEmbedder returns Azure embedding client bound to the embeddings deployment.
func CreateEmbedder(cfg *config.Config, httpClient *http.Client) (llms.Embedder, error) {
	return azure.NewEmbeddings(
		azure.WithEndpoint(cfg.Endpoint),
		azure.WithAPIKey(cfg.APIKey),
		azure.WithAPIVersion(cfg.APIVersion),
		azure.WithDeployment(cfg.EmbeddingsDeployment),
		azure.WithModelName(cfg.EmbeddingsModel),
		azure.WithHTTPClient(httpClient),
	)
}

// Option configures Factory.
type Option func(*options)

type options struct {
	tracing    *bool
	httpClient *http.Client
	callbacks  []callbacks.Handler
	tags       []string
}

// WithTracing overrides the tracing flag from configuration.
func WithTracing(enable bool) Option {
	return func(o *options) {
		o.tracing = &enable
	}
}

// WithHTTPClient sets the HTTP client used by the model clients.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithCallbacks adds handlers notified around every call.
func WithCallbacks(handlers ...callbacks.Handler) Option {
	return func(o *options) {
		o.callbacks = append(o.callbacks, handlers...)
	}
}

// WithTags adds tags reported with every call.
func WithTags(tags ...string) Option {
	return func(o *options) {
		o.tags = append(o.tags, tags...)
	}
}

// Factory creates chat and embedding handles.
// It is safe for concurrent use.
type Factory struct {
	cfg        *config.Config
	tracer     tracing.Sink
	handlers   []callbacks.Handler
	tags       []string
	httpClient *http.Client

	lock     sync.Mutex
	chat     llms.Model
	embedder llms.Embedder
}

// Load returns Factory for configuration loaded from path,
// see config.Load for the path semantics.
func Load(path string, opts ...Option) (*Factory, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// New returns Factory.
// The tracing sink is selected once; construction never fails because
// tracing is unavailable.
func New(cfg *config.Config, opts ...Option) (*Factory, error) {
	if cfg == nil {
		return nil, &config.ConfigurationError{Cause: errors.New("configuration is required")}
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	enable := cfg.TracingEnabled
	if o.tracing != nil {
		enable = *o.tracing
	}

	f := &Factory{
		cfg:        cfg,
		tags:       slices.Clone(o.tags),
		httpClient: o.httpClient,
	}

	sink := tracing.Select(cfg, enable)
	if !tracing.IsNoop(sink) {
		f.tracer = sink
		f.handlers = append(f.handlers, sink)
	}
	for _, h := range o.callbacks {
		if h != nil {
			f.handlers = append(f.handlers, h)
		}
	}

	logger.KV(xlog.DEBUG,
		"status", "created_factory",
		"endpoint", cfg.Endpoint,
		"version", cfg.APIVersion,
		"chat", cfg.ChatDeployment,
		"embeddings", cfg.EmbeddingsDeployment,
		"tracing", f.TracingEnabled())
	return f, nil
}

// Config returns the configuration the factory was created with.
func (f *Factory) Config() *config.Config {
	return f.cfg
}

// TracingEnabled reports whether a tracing sink is attached.
func (f *Factory) TracingEnabled() bool {
	return f.tracer != nil
}

// Tracer returns the tracing sink, or nil when tracing is disabled.
func (f *Factory) Tracer() tracing.Sink {
	return f.tracer
}

// Close delivers pending traces and stops the tracing sink.
func (f *Factory) Close(ctx context.Context) error {
	if f.tracer == nil {
		return nil
	}
	return f.tracer.Close(ctx)
}

// DocumentIntelligence returns the Document Intelligence endpoint and key.
func (f *Factory) DocumentIntelligence() (endpoint string, key string, err error) {
	return f.cfg.DocumentIntelligence()
}

// ChatModel returns a chat handle with default temperature and max tokens,
// opts override the defaults.
func (f *Factory) ChatModel(opts ...llms.CallOption) (*ChatHandle, error) {
	llm, err := f.chatLLM()
	if err != nil {
		return nil, err
	}

	defaults := []llms.CallOption{
		llms.WithTemperature(DefaultTemperature),
		llms.WithMaxTokens(DefaultMaxTokens),
	}
	return &ChatHandle{
		llm:       llm,
		model:     f.cfg.ChatModel,
		options:   append(defaults, opts...),
		callbacks: slices.Clone(f.handlers),
		tags:      f.tags,
	}, nil
}

// Embeddings returns an embedding handle.
func (f *Factory) Embeddings() (*EmbeddingHandle, error) {
	embedder, err := f.embeddingLLM()
	if err != nil {
		return nil, err
	}
	return &EmbeddingHandle{
		embedder:  embedder,
		model:     f.cfg.EmbeddingsModel,
		callbacks: slices.Clone(f.handlers),
		tags:      f.tags,
	}, nil
}

func (f *Factory) chatLLM() (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.chat != nil {
		return f.chat, nil
	}
	llm, err := NewChatLLM(f.cfg, f.httpClient)
	if err != nil {
		logger.KV(xlog.ERROR,
			"reason", "NewChatLLM",
			"deployment", f.cfg.ChatDeployment,
			"err", err.Error())
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"type", llm.GetProviderType(),
		"version", f.cfg.APIVersion,
		"name", llm.GetName())

	f.chat = llm
	return llm, nil
}

func (f *Factory) embeddingLLM() (llms.Embedder, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.embedder != nil {
		return f.embedder, nil
	}
	embedder, err := NewEmbedder(f.cfg, f.httpClient)
	if err != nil {
		logger.KV(xlog.ERROR,
			"reason", "NewEmbedder",
			"deployment", f.cfg.EmbeddingsDeployment,
			"err", err.Error())
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "created_embedder",
		"version", f.cfg.APIVersion,
		"name", embedder.GetName())

	f.embedder = embedder
	return embedder, nil
}
