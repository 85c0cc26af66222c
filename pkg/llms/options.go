package llms

import (
	"context"
)

// CallOption is a function that configures a CallOptions.
type CallOption func(*CallOptions)

// CallOptions is a set of options for calling models. Not all models support
// all options. Values are passed to the provider as is, range validation is
// left to the provider.
type CallOptions struct {
	// Model is the deployment to use, overrides the one the client is bound to.
	Model string
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int
	// Temperature is the temperature for sampling, between 0 and 2.
	Temperature float64
	// StopWords is a list of words to stop on.
	StopWords []string
	// StreamingFunc is a function to be called for each chunk of a streaming response.
	// Return an error to stop streaming early.
	StreamingFunc func(ctx context.Context, chunk []byte) error
	// TopP is the cumulative probability for top-p sampling.
	TopP float64
	// Seed is a seed for deterministic sampling.
	Seed int
	// N is how many chat completion choices to generate for each input message.
	N int
	// FrequencyPenalty is the frequency penalty for sampling.
	FrequencyPenalty float64
	// PresencePenalty is the presence penalty for sampling.
	PresencePenalty float64

	// Metadata is a map of metadata to include in the request.
	// The meaning of this field is specific to the backend in use.
	Metadata map[string]any

	// set tracks which numeric options were set explicitly,
	// so that zero values can be distinguished from defaults.
	set map[string]bool
}

const (
	optMaxTokens        = "max_tokens"
	optTemperature      = "temperature"
	optTopP             = "top_p"
	optSeed             = "seed"
	optFrequencyPenalty = "frequency_penalty"
	optPresencePenalty  = "presence_penalty"
)

func (o *CallOptions) mark(name string) {
	if o.set == nil {
		o.set = make(map[string]bool)
	}
	o.set[name] = true
}

// HasMaxTokens reports whether MaxTokens was set.
func (o CallOptions) HasMaxTokens() bool { return o.set[optMaxTokens] }

// HasTemperature reports whether Temperature was set.
func (o CallOptions) HasTemperature() bool { return o.set[optTemperature] }

// HasTopP reports whether TopP was set.
func (o CallOptions) HasTopP() bool { return o.set[optTopP] }

// HasSeed reports whether Seed was set.
func (o CallOptions) HasSeed() bool { return o.set[optSeed] }

// HasFrequencyPenalty reports whether FrequencyPenalty was set.
func (o CallOptions) HasFrequencyPenalty() bool { return o.set[optFrequencyPenalty] }

// HasPresencePenalty reports whether PresencePenalty was set.
func (o CallOptions) HasPresencePenalty() bool { return o.set[optPresencePenalty] }

// NewCallOptions applies the options in order, later options win.
func NewCallOptions(options ...CallOption) CallOptions {
	opts := CallOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	return opts
}

// WithModel specifies which model name to use.
func WithModel(model string) CallOption {
	return func(o *CallOptions) {
		o.Model = model
	}
}

// WithMaxTokens specifies the max number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
		o.mark(optMaxTokens)
	}
}

// WithTemperature specifies the model temperature, a hyperparameter that
// regulates the randomness, or creativity, of the AI's responses.
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = temperature
		o.mark(optTemperature)
	}
}

// WithStopWords specifies a list of words to stop generation on.
func WithStopWords(stopWords []string) CallOption {
	return func(o *CallOptions) {
		o.StopWords = stopWords
	}
}

// WithStreamingFunc specifies the streaming function to use.
func WithStreamingFunc(streamingFunc func(ctx context.Context, chunk []byte) error) CallOption {
	return func(o *CallOptions) {
		o.StreamingFunc = streamingFunc
	}
}

// WithTopP	will add an option to use top-p sampling.
func WithTopP(topP float64) CallOption {
	return func(o *CallOptions) {
		o.TopP = topP
		o.mark(optTopP)
	}
}

// WithSeed will add an option to use deterministic sampling.
func WithSeed(seed int) CallOption {
	return func(o *CallOptions) {
		o.Seed = seed
		o.mark(optSeed)
	}
}

// WithN will add an option to set how many chat completion choices to generate for each input message.
func WithN(n int) CallOption {
	return func(o *CallOptions) {
		o.N = n
	}
}

// WithFrequencyPenalty will add an option to set the frequency penalty for sampling.
func WithFrequencyPenalty(frequencyPenalty float64) CallOption {
	return func(o *CallOptions) {
		o.FrequencyPenalty = frequencyPenalty
		o.mark(optFrequencyPenalty)
	}
}

// WithPresencePenalty will add an option to set the presence penalty for sampling.
func WithPresencePenalty(presencePenalty float64) CallOption {
	return func(o *CallOptions) {
		o.PresencePenalty = presencePenalty
		o.mark(optPresencePenalty)
	}
}

// WithMetadata will add an option to set metadata to include in the request.
// The meaning of this field is specific to the backend in use.
func WithMetadata(metadata map[string]any) CallOption {
	return func(o *CallOptions) {
		o.Metadata = metadata
	}
}
