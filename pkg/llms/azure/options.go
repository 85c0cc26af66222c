package azure

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Option configures Azure client.
type Option func(*options)

type options struct {
	endpoint   string
	apiVersion string
	apiKey     string
	deployment string
	model      string
	httpClient *http.Client
	maxRetries int
}

func newOptions(opts []Option) *options {
	o := &options{
		apiVersion: DefaultAPIVersion,
		maxRetries: -1,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.endpoint = strings.TrimSuffix(o.endpoint, "/")
	if o.model == "" {
		o.model = o.deployment
	}
	return o
}

func (o *options) validate() error {
	if o.endpoint == "" {
		return errors.New("azure: endpoint is required")
	}
	if o.apiKey == "" {
		return errors.New("azure: API key is required")
	}
	if o.deployment == "" {
		return errors.New("azure: deployment is required")
	}
	return nil
}

// WithEndpoint sets the resource endpoint, e.g. https://myres.openai.azure.com
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithAPIVersion sets the REST API version.
func WithAPIVersion(version string) Option {
	return func(o *options) {
		if version != "" {
			o.apiVersion = version
		}
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithDeployment sets the deployment the client is bound to.
func WithDeployment(deployment string) Option {
	return func(o *options) {
		o.deployment = deployment
	}
}

// WithModelName sets the model name behind the deployment,
// it defaults to the deployment name.
func WithModelName(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithMaxRetries sets the number of retries the SDK performs,
// a negative value keeps the SDK default.
func WithMaxRetries(retries int) Option {
	return func(o *options) {
		o.maxRetries = retries
	}
}
