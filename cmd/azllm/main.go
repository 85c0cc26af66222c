package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/callbacks"
	"github.com/effective-security/azurellm/pkg/config"
	"github.com/effective-security/azurellm/pkg/llmfactory"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/llmutils"
	"github.com/effective-security/azurellm/pkg/tracing"
	"github.com/effective-security/xlog"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	// register the opik tracing back-end
	_ "github.com/effective-security/azurellm/pkg/tracing/opik"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "azllm")

const closeTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		os.Exit(1)
	}
}

func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "azllm",
		Usage:     "Azure OpenAI chat and embeddings with optional Opik tracing",
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Aliases: []string{"e"},
				Usage:   "Path to .env, .yaml, .json or .toml settings file, by default .env is searched in the current and parent folder",
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "Tag reported with every call, can be repeated",
			},
			&cli.BoolFlag{
				Name:  "no-tracing",
				Usage: "Disable tracing regardless of OPIK_ENABLED",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print call events",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging, including call events",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Print the configuration with masked secrets and tracing status",
				Action: checkCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"o"},
						Usage:   "Output format: text, json or yaml",
						Value:   "text",
					},
				},
			},
			{
				Name:      "chat",
				Usage:     "Send a prompt to the chat deployment",
				ArgsUsage: "<prompt>",
				Action:    chatCommand,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:    "temperature",
						Aliases: []string{"t"},
						Usage:   "Sampling temperature",
						Value:   llmfactory.DefaultTemperature,
					},
					&cli.IntFlag{
						Name:  "max-tokens",
						Usage: "Maximum number of tokens to generate",
						Value: llmfactory.DefaultMaxTokens,
					},
					&cli.StringFlag{
						Name:    "system",
						Aliases: []string{"s"},
						Usage:   "System prompt",
					},
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "Print the response as it is generated",
					},
					&cli.StringSliceFlag{
						Name:  "image",
						Usage: "Image URL sent with the prompt, can be repeated",
					},
					&cli.StringFlag{
						Name:  "image-detail",
						Usage: "Image detail: auto, low or high",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question grounded on the given context",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "context",
						Aliases:  []string{"c"},
						Usage:    "Retrieved context, @file reads it from the file",
						Required: true,
					},
				},
			},
			{
				Name:   "converse",
				Usage:  "Multi-turn chat reading one message per line, /history, /reset and /exit are commands",
				Action: converseCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "system",
						Aliases: []string{"s"},
						Usage:   "System prompt",
					},
					&cli.StringFlag{
						Name:  "chat-id",
						Usage: "Chat ID to continue, a new ID is generated by default",
					},
					&cli.StringFlag{
						Name:  "redis-url",
						Usage: "Keep the history in Redis, e.g. redis://localhost:6379/0",
					},
					&cli.StringFlag{
						Name:  "redis-prefix",
						Usage: "Redis keys prefix",
						Value: "azllm",
					},
				},
			},
			{
				Name:      "embed",
				Usage:     "Create embeddings for texts",
				ArgsUsage: "<text> [text...]",
				Action:    embedCommand,
			},
			{
				Name:   "docintel",
				Usage:  "Print the Document Intelligence settings",
				Action: docIntelCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	xlog.SetFormatter(xlog.NewStringFormatter(c.App.ErrWriter))
	if c.Bool("debug") {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}
	return nil
}

func newFactory(c *cli.Context) (*llmfactory.Factory, error) {
	var opts []llmfactory.Option
	if c.Bool("no-tracing") {
		opts = append(opts, llmfactory.WithTracing(false))
	}
	if c.Bool("verbose") {
		opts = append(opts, llmfactory.WithCallbacks(callbacks.NewPrinter(c.App.ErrWriter, callbacks.ModeDefault)))
	}
	if c.Bool("debug") {
		opts = append(opts, llmfactory.WithCallbacks(callbacks.NewPackageLogger(logger)))
	}
	if tags := c.StringSlice("tag"); len(tags) > 0 {
		opts = append(opts, llmfactory.WithTags(tags...))
	}
	return llmfactory.Load(c.String("env-file"), opts...)
}

// closeFactory delivers pending traces before the command exits.
func closeFactory(f *llmfactory.Factory) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := f.Close(ctx); err != nil {
		logger.KV(xlog.WARNING, "reason", "close", "err", err.Error())
	}
}

func checkCommand(c *cli.Context) error {
	f, err := newFactory(c)
	if err != nil {
		return err
	}
	defer closeFactory(f)
	out := c.App.Writer

	settings := f.Config().Redacted()
	switch format := c.String("format"); format {
	case "text":
	case "json", "yaml":
		return printStatus(out, format, checkStatus{
			Settings: settings,
			Tracing:  f.TracingEnabled(),
			Backends: tracing.Backends(),
		})
	default:
		return errors.Errorf("unsupported format: %s", format)
	}

	fmt.Fprintln(out, "Configuration:")
	for _, k := range config.Keys() {
		v := settings[k]
		if v == "" {
			v = "(not set)"
		}
		fmt.Fprintf(out, "  %s=%s\n", k, v)
	}

	if f.TracingEnabled() {
		fmt.Fprintf(out, "Tracing: enabled (%s), project %s\n", f.Tracer().Name(), f.Config().ProjectName)
	} else {
		fmt.Fprintf(out, "Tracing: disabled, available back-ends: %s\n", strings.Join(tracing.Backends(), ","))
	}
	return nil
}

type checkStatus struct {
	Settings map[string]string `json:"settings" yaml:"settings"`
	Tracing  bool              `json:"tracing" yaml:"tracing"`
	Backends []string          `json:"backends" yaml:"backends"`
}

func printStatus(out io.Writer, format string, status checkStatus) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(status); err != nil {
			return errors.Wrap(err, "failed to encode status")
		}
		return enc.Close()
	}
	fmt.Fprintln(out, llmutils.ToJSONIndent(status))
	return nil
}

func chatCommand(c *cli.Context) error {
	prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if prompt == "" {
		return errors.New("prompt is required")
	}

	f, err := newFactory(c)
	if err != nil {
		return err
	}
	defer closeFactory(f)

	chat, err := f.ChatModel(
		llms.WithTemperature(c.Float64("temperature")),
		llms.WithMaxTokens(c.Int("max-tokens")),
	)
	if err != nil {
		return err
	}

	var msgs []llms.Message
	if system := c.String("system"); system != "" {
		msgs = append(msgs, llms.SystemMessage(system))
	}
	msgs = append(msgs, humanMessage(prompt, c.StringSlice("image"), c.String("image-detail")))

	out := c.App.Writer
	if c.Bool("stream") {
		_, err = chat.Stream(c.Context, msgs, func(_ context.Context, chunk []byte) error {
			_, werr := out.Write(chunk)
			return werr
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		return nil
	}

	resp, err := chat.Generate(c.Context, msgs)
	if err != nil {
		return err
	}
	fmt.Fprint(out, llmutils.EnsureEndsWithNewline(resp.Content()))
	return nil
}

func humanMessage(prompt string, images []string, detail string) llms.Message {
	if len(images) == 0 {
		return llms.HumanMessage(prompt)
	}
	parts := []llms.ContentPart{llms.TextPart(prompt)}
	for _, u := range images {
		img := llms.ImageURLPart(u)
		img.Detail = detail
		parts = append(parts, img)
	}
	return llms.MessageFromParts(llms.RoleHuman, parts...)
}

func embedCommand(c *cli.Context) error {
	texts := c.Args().Slice()
	if len(texts) == 0 {
		return errors.New("at least one text is required")
	}

	f, err := newFactory(c)
	if err != nil {
		return err
	}
	defer closeFactory(f)

	h, err := f.Embeddings()
	if err != nil {
		return err
	}
	vecs, err := h.EmbedDocuments(c.Context, texts)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Embedded %d texts\n", len(vecs))
	for i, vec := range vecs {
		n := min(5, len(vec))
		fmt.Fprintf(out, "%d: dimensions %d, first values %v\n", i, len(vec), vec[:n])
	}
	return nil
}

func docIntelCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}
	endpoint, key, err := cfg.DocumentIntelligence()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Endpoint: %s\nKey: %s\n", endpoint, config.Mask(key))
	return nil
}
