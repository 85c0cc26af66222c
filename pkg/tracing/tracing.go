package tracing

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/callbacks"
	"github.com/effective-security/azurellm/pkg/config"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "tracing")

// DefaultBackend is the back-end used by Select.
const DefaultBackend = "opik"

// Sink receives call events and delivers them to a tracing back-end.
type Sink interface {
	callbacks.Handler
	// Name returns the back-end name.
	Name() string
	// Flush delivers pending events and waits for the delivery.
	Flush(ctx context.Context) error
	// Close flushes pending events and releases the sink.
	// Events received after Close are dropped.
	Close(ctx context.Context) error
}

// Provider creates a Sink from configuration.
type Provider func(cfg *config.Config) (Sink, error)

var (
	lock      sync.RWMutex
	providers = map[string]Provider{}
)

// Register makes a back-end available by name.
// Registering the same name again replaces the previous provider.
func Register(name string, p Provider) {
	lock.Lock()
	defer lock.Unlock()
	if p == nil {
		delete(providers, name)
		return
	}
	providers[name] = p
}

// Registered reports whether the back-end is available.
func Registered(name string) bool {
	lock.RLock()
	defer lock.RUnlock()
	_, ok := providers[name]
	return ok
}

// Backends returns the names of available back-ends, sorted.
func Backends() []string {
	lock.RLock()
	defer lock.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the tracing sink for cfg.
// Noop is returned when enable is false or the default back-end
// is not available or fails to initialise.
func Select(cfg *config.Config, enable bool) Sink {
	return SelectBackend(DefaultBackend, cfg, enable)
}

// SelectBackend is Select for a named back-end.
func SelectBackend(name string, cfg *config.Config, enable bool) Sink {
	if !enable || cfg == nil {
		logger.KV(xlog.DEBUG, "status", "disabled", "backend", name)
		return noop
	}

	lock.RLock()
	p, ok := providers[name]
	lock.RUnlock()
	if !ok {
		logger.KV(xlog.WARNING,
			"reason", "backend_not_available",
			"backend", name,
			"action", "tracing disabled")
		return noop
	}

	sink, err := create(p, cfg)
	if err != nil {
		logger.KV(xlog.WARNING,
			"reason", "backend_init",
			"backend", name,
			"err", err.Error(),
			"action", "tracing disabled")
		return noop
	}

	logger.KV(xlog.INFO,
		"status", "enabled",
		"backend", name,
		"url", cfg.TracingURL,
		"project", cfg.ProjectName)
	return sink
}

func create(p Provider, cfg *config.Config) (sink Sink, err error) {
	defer func() {
		if r := recover(); r != nil {
			sink = nil
			err = errors.Errorf("panic: %v", r)
		}
	}()
	sink, err = p(cfg)
	if err == nil && sink == nil {
		err = errors.New("provider returned no sink")
	}
	return sink, err
}

// IsNoop reports whether s does not deliver events.
func IsNoop(s Sink) bool {
	_, ok := s.(*Noop)
	return s == nil || ok
}
