package config

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "config")

// DotEnvFile is the name of the settings file searched when no path is given.
const DotEnvFile = ".env"

// Defaults
const (
	DefaultAPIVersion           = "2024-02-01"
	DefaultChatDeployment       = "gpt-4.1-mini"
	DefaultEmbeddingsDeployment = "text-embedding-3-large"
	DefaultTracingURL           = "http://localhost:5173/api"
	DefaultWorkspace            = "default"
	DefaultProjectName          = "customer-support"
)

// Config holds the Azure OpenAI and tracing settings.
// A Config returned by Load or FromEnviron is validated and must be treated
// as read-only.
type Config struct {
	// Endpoint is the Azure OpenAI resource endpoint, e.g. https://myres.openai.azure.com
	Endpoint string `env:"AZURE_OPENAI_ENDPOINT" json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty" validate:"required,url"`
	// APIKey is the Azure OpenAI key.
	APIKey string `env:"AZURE_OPENAI_API_KEY" json:"api_key,omitempty" yaml:"api_key,omitempty" toml:"api_key,omitempty" validate:"required" mask:"true"`
	// APIVersion is the Azure OpenAI REST API version.
	APIVersion string `env:"AZURE_OPENAI_API_VERSION" envDefault:"2024-02-01" json:"api_version,omitempty" yaml:"api_version,omitempty" toml:"api_version,omitempty"`

	// ChatDeployment is the deployment used for chat completions.
	ChatDeployment string `env:"AZURE_OPENAI_CHAT_DEPLOYMENT_NAME" envDefault:"gpt-4.1-mini" json:"chat_deployment,omitempty" yaml:"chat_deployment,omitempty" toml:"chat_deployment,omitempty"`
	// EmbeddingsDeployment is the deployment used for embeddings.
	EmbeddingsDeployment string `env:"AZURE_OPENAI_EMBEDDINGS_DEPLOYMENT_NAME" envDefault:"text-embedding-3-large" json:"embeddings_deployment,omitempty" yaml:"embeddings_deployment,omitempty" toml:"embeddings_deployment,omitempty"`
	// ChatModel is the model name behind ChatDeployment, reported to tracing.
	ChatModel string `env:"AZURE_OPENAI_CHAT_MODEL_NAME" envDefault:"gpt-4.1-mini" json:"chat_model,omitempty" yaml:"chat_model,omitempty" toml:"chat_model,omitempty"`
	// EmbeddingsModel is the model name behind EmbeddingsDeployment, reported to tracing.
	EmbeddingsModel string `env:"AZURE_OPENAI_EMBEDDINGS_MODEL_NAME" envDefault:"text-embedding-3-large" json:"embeddings_model,omitempty" yaml:"embeddings_model,omitempty" toml:"embeddings_model,omitempty"`

	// DocIntelEndpoint is the optional Azure Document Intelligence endpoint.
	DocIntelEndpoint string `env:"AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT" json:"doc_intel_endpoint,omitempty" yaml:"doc_intel_endpoint,omitempty" toml:"doc_intel_endpoint,omitempty" validate:"omitempty,url"`
	// DocIntelKey is the optional Azure Document Intelligence key.
	DocIntelKey string `env:"AZURE_DOCUMENT_INTELLIGENCE_KEY" json:"doc_intel_key,omitempty" yaml:"doc_intel_key,omitempty" toml:"doc_intel_key,omitempty" mask:"true"`

	// TracingEnabled turns tracing on when a tracing backend is available.
	TracingEnabled bool `env:"OPIK_ENABLED" envDefault:"true" json:"tracing_enabled" yaml:"tracing_enabled" toml:"tracing_enabled"`
	// TracingURL is the tracing backend API URL.
	TracingURL string `env:"OPIK_URL_OVERRIDE" envDefault:"http://localhost:5173/api" json:"tracing_url,omitempty" yaml:"tracing_url,omitempty" toml:"tracing_url,omitempty" validate:"omitempty,url"`
	// Workspace is the tracing workspace name.
	Workspace string `env:"OPIK_WORKSPACE" envDefault:"default" json:"workspace,omitempty" yaml:"workspace,omitempty" toml:"workspace,omitempty"`
	// ProjectName is the tracing project name.
	ProjectName string `env:"OPIK_PROJECT_NAME" envDefault:"customer-support" json:"project_name,omitempty" yaml:"project_name,omitempty" toml:"project_name,omitempty"`
	// TracingAPIKey is the optional tracing backend API key.
	TracingAPIKey string `env:"OPIK_API_KEY" json:"tracing_api_key,omitempty" yaml:"tracing_api_key,omitempty" toml:"tracing_api_key,omitempty" mask:"true"`
}

// fieldInfo maps a Config struct field to its settings key.
type fieldInfo struct {
	key    string
	field  string
	secret bool
}

var fields = describeFields(reflect.TypeOf(Config{}))

func describeFields(t reflect.Type) map[string]fieldInfo {
	res := make(map[string]fieldInfo, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		res[f.Name] = fieldInfo{
			key:    f.Tag.Get("env"),
			field:  strings.Split(f.Tag.Get("yaml"), ",")[0],
			secret: f.Tag.Get("mask") == "true",
		}
	}
	return res
}

func settingFor(structField string) Setting {
	if fi, ok := fields[structField]; ok {
		return Setting{Key: fi.key, Field: fi.field}
	}
	return Setting{Key: structField, Field: structField}
}

// Load returns validated configuration.
//
// When path is empty, the .env file is searched in the current directory,
// then in the parent directory; a missing default file is not an error.
// Files with .yaml, .yml or .json extension are read as structured files,
// .toml files as TOML, any other file is read as a dotenv file.
// Non-empty values from the process environment take precedence over the
// file values for every format.
func Load(path string) (*Config, error) {
	if path == "" {
		path = findDotEnv()
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return loadStructured(path)
	case ".toml":
		return loadTOML(path)
	}

	environ := map[string]string{}
	if path != "" {
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, &ConfigurationError{Cause: errors.Wrapf(err, "unable to read settings file %q", path)}
		}
		environ = vars
		logger.KV(xlog.DEBUG, "status", "loaded", "file", path, "count", len(vars))
	}
	for k, v := range processEnviron() {
		// empty process values do not hide the file values
		if v != "" {
			environ[k] = v
		}
	}
	return FromEnviron(environ)
}

// FromEnviron returns validated configuration parsed from the environ map.
// Keys that do not name a setting are ignored.
func FromEnviron(environ map[string]string) (*Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	cfg := new(Config)
	cerr := &ConfigurationError{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		collectParseErrors(cerr, err)
	}
	collectValidationErrors(cerr, cfg)
	if !cerr.empty() {
		return nil, cerr
	}
	return cfg, nil
}

func loadStructured(path string) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	if err := configloader.UnmarshalAndExpand(path, cfg); err != nil {
		return nil, &ConfigurationError{Cause: errors.Wrapf(err, "unable to load settings file %q", path)}
	}
	logger.KV(xlog.DEBUG, "status", "loaded", "file", path)
	return withProcessEnviron(cfg)
}

func loadTOML(path string) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, &ConfigurationError{Cause: errors.Wrapf(err, "unable to load settings file %q", path)}
	}
	logger.KV(xlog.DEBUG, "status", "loaded", "file", path)
	return withProcessEnviron(cfg)
}

// withProcessEnviron returns validated cfg with the process environment
// values applied on top of the file values.
func withProcessEnviron(cfg *Config) (*Config, error) {
	environ := cfg.environ()
	for k, v := range processEnviron() {
		if v != "" {
			environ[k] = v
		}
	}
	return FromEnviron(environ)
}

// environ returns the non-empty settings keyed by environment name.
func (c *Config) environ() map[string]string {
	res := make(map[string]string, len(fields))
	v := reflect.ValueOf(*c)
	for name, fi := range fields {
		fv := v.FieldByName(name)
		switch fv.Kind() {
		case reflect.Bool:
			res[fi.key] = strconv.FormatBool(fv.Bool())
		default:
			if s := fv.String(); s != "" {
				res[fi.key] = s
			}
		}
	}
	return res
}

// defaults returns Config populated only with default values.
func defaults() (*Config, error) {
	cfg := new(Config)
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, errors.Wrap(err, "failed to apply defaults")
	}
	return cfg, nil
}

func collectParseErrors(cerr *ConfigurationError, err error) {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		cerr.Cause = err
		return
	}
	for _, e := range agg.Errors {
		var perr env.ParseError
		if errors.As(e, &perr) {
			s := settingFor(perr.Name)
			s.Reason = "invalid " + perr.Type.String() + " value"
			cerr.Invalid = append(cerr.Invalid, s)
			continue
		}
		cerr.Invalid = append(cerr.Invalid, Setting{Key: "unknown", Field: "unknown", Reason: e.Error()})
	}
}

var validate = validator.New()

func collectValidationErrors(cerr *ConfigurationError, cfg *Config) {
	err := validate.Struct(cfg)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		cerr.Cause = err
		return
	}
	for _, fe := range verrs {
		s := settingFor(fe.StructField())
		switch fe.Tag() {
		case "required":
			cerr.Missing = append(cerr.Missing, s)
		case "url":
			s.Reason = "must be a valid URL"
			cerr.Invalid = append(cerr.Invalid, s)
		default:
			s.Reason = "failed " + fe.Tag() + " validation"
			cerr.Invalid = append(cerr.Invalid, s)
		}
	}
}

func findDotEnv() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, dir := range []string{wd, filepath.Dir(wd)} {
		p := filepath.Join(dir, DotEnvFile)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

func processEnviron() map[string]string {
	res := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			res[k] = v
		}
	}
	return res
}

// DocumentIntelligence returns the Document Intelligence endpoint and key,
// or ConfigurationError if either is not configured.
func (c *Config) DocumentIntelligence() (endpoint string, key string, err error) {
	cerr := &ConfigurationError{}
	if c.DocIntelEndpoint == "" {
		cerr.Missing = append(cerr.Missing, settingFor("DocIntelEndpoint"))
	}
	if c.DocIntelKey == "" {
		cerr.Missing = append(cerr.Missing, settingFor("DocIntelKey"))
	}
	if !cerr.empty() {
		return "", "", cerr
	}
	return c.DocIntelEndpoint, c.DocIntelKey, nil
}

// Redacted returns settings keyed by environment name, with secrets masked.
func (c *Config) Redacted() map[string]string {
	res := make(map[string]string, len(fields))
	v := reflect.ValueOf(*c)
	for name, fi := range fields {
		fv := v.FieldByName(name)
		var s string
		switch fv.Kind() {
		case reflect.Bool:
			s = strconv.FormatBool(fv.Bool())
		default:
			s = fv.String()
		}
		if s == "" {
			res[fi.key] = ""
			continue
		}
		if fi.secret {
			s = Mask(s)
		} else if head, cut := truncate(s, 50); cut {
			s = head + "..."
		}
		res[fi.key] = s
	}
	return res
}

// Keys returns all settings keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for _, fi := range fields {
		keys = append(keys, fi.key)
	}
	sort.Strings(keys)
	return keys
}

// Mask hides a secret, keeping at most the first 10 characters of long values.
func Mask(secret string) string {
	if head, cut := truncate(secret, 10); cut {
		return head + "..."
	}
	return "***"
}

// truncate returns the first n characters of s, and whether s was longer.
func truncate(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}
