package azure

import (
	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
)

// DefaultAPIVersion is used when no version is configured.
const DefaultAPIVersion = "2024-02-01"

var (
	// ErrEmptyResponse is returned when the service returns no choices or vectors.
	ErrEmptyResponse = errors.New("no response")
	// ErrUnexpectedResponseLength is returned when the number of vectors
	// does not match the number of texts.
	ErrUnexpectedResponseLength = errors.New("unexpected length of response")
)

func newClient(o *options) openai.Client {
	reqOpts := []option.RequestOption{
		azure.WithEndpoint(o.endpoint, o.apiVersion),
		azure.WithAPIKey(o.apiKey),
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}
	if o.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(o.maxRetries))
	}
	return openai.NewClient(reqOpts...)
}
