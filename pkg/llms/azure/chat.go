package azure

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "azure")

// Chat is a chat completion client bound to a deployment.
type Chat struct {
	client     openai.Client
	deployment string
	model      string
}

var _ llms.Model = (*Chat)(nil)

// NewChat returns a chat client.
// Endpoint, API key and deployment are required.
func NewChat(opts ...Option) (*Chat, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Chat{
		client:     newClient(o),
		deployment: o.deployment,
		model:      o.model,
	}, nil
}

// GetName returns the deployment name.
func (c *Chat) GetName() string {
	return c.deployment
}

// ModelName returns the model name behind the deployment.
func (c *Chat) ModelName() string {
	return c.model
}

// GetProviderType returns ProviderAzure.
func (c *Chat) GetProviderType() llms.ProviderType {
	return llms.ProviderAzure
}

// GenerateContent sends the messages to the deployment.
// Provider errors are returned unchanged.
func (c *Chat) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	msgs, err := toChatMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.deployment),
		Messages: msgs,
	}
	applyCallOptions(&params, &opts)

	if opts.StreamingFunc != nil {
		return c.stream(ctx, params, opts.StreamingFunc)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "chat_completion", "deployment", params.Model, "err", err.Error())
		return nil, err
	}
	return toContentResponse(resp)
}

func (c *Chat) stream(ctx context.Context, params openai.ChatCompletionNewParams, fn func(ctx context.Context, chunk []byte) error) (*llms.ContentResponse, error) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := fn(ctx, []byte(chunk.Choices[0].Delta.Content)); err != nil {
				return nil, errors.Wrap(err, "streaming func returned an error")
			}
		}
	}
	if err := stream.Err(); err != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "chat_stream", "deployment", params.Model, "err", err.Error())
		return nil, err
	}
	return toContentResponse(&acc.ChatCompletion)
}

func applyCallOptions(params *openai.ChatCompletionNewParams, opts *llms.CallOptions) {
	if opts.Model != "" {
		params.Model = openai.ChatModel(opts.Model)
	}
	if opts.HasTemperature() {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.HasMaxTokens() {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.HasTopP() {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.HasSeed() {
		params.Seed = openai.Int(int64(opts.Seed))
	}
	if opts.HasFrequencyPenalty() {
		params.FrequencyPenalty = openai.Float(opts.FrequencyPenalty)
	}
	if opts.HasPresencePenalty() {
		params.PresencePenalty = openai.Float(opts.PresencePenalty)
	}
	if opts.N > 0 {
		params.N = openai.Int(int64(opts.N))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: opts.StopWords,
		}
	}
	if len(opts.Metadata) > 0 {
		md := shared.Metadata{}
		for k, v := range opts.Metadata {
			if s, ok := v.(string); ok {
				md[k] = s
			}
		}
		params.Metadata = md
	}
}

func toChatMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	res := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llms.RoleSystem:
			res = append(res, openai.SystemMessage(m.TextParts()))
		case llms.RoleAI:
			res = append(res, openai.AssistantMessage(m.TextParts()))
		case llms.RoleHuman, llms.RoleGeneric:
			res = append(res, toUserMessage(m))
		default:
			return nil, errors.Wrapf(llms.ErrUnexpectedRole, "role %q", m.Role)
		}
	}
	return res, nil
}

func toUserMessage(m llms.Message) openai.ChatCompletionMessageParamUnion {
	hasImage := false
	for _, p := range m.Parts {
		if _, ok := p.(llms.ImageURLContent); ok {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return openai.UserMessage(m.TextParts())
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch pp := p.(type) {
		case llms.TextContent:
			parts = append(parts, openai.TextContentPart(pp.Text))
		case llms.ImageURLContent:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    pp.URL,
				Detail: pp.Detail,
			}))
		}
	}
	return openai.UserMessage(parts)
}

func toContentResponse(resp *openai.ChatCompletion) (*llms.ContentResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	res := &llms.ContentResponse{
		Choices: make([]*llms.ContentChoice, 0, len(resp.Choices)),
	}
	for _, c := range resp.Choices {
		res.Choices = append(res.Choices, &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"InputTokens":  resp.Usage.PromptTokens,
				"OutputTokens": resp.Usage.CompletionTokens,
				"TotalTokens":  resp.Usage.TotalTokens,
				"Model":        resp.Model,
			},
		})
	}
	return res, nil
}
