package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	Debug      bool

	// Completion backend
	AzureOpenAIEndpoint     string
	AzureOpenAIKey          string
	AzureOpenAIModel        string
	AzureOpenAIStopSequence []string
	// OpenAIBaseURL overrides the API base URL for OpenAI-compatible
	// endpoints; takes effect only when AzureOpenAIEndpoint is unset.
	OpenAIBaseURL string

	// Search authorization
	PermittedGroupsColumn string
	SearchContentColumns  []string
	// GraphEndpoint overrides the directory membership endpoint, e.g. for
	// national-cloud Graph instances. Empty selects the global endpoint.
	GraphEndpoint string

	// Promptflow backend
	UsePromptflow                bool
	PromptflowEndpoint           string
	PromptflowAPIKey             string
	PromptflowResponseTimeout    time.Duration
	PromptflowRequestFieldName   string
	PromptflowResponseFieldName  string
	PromptflowCitationsFieldName string
}

func Load() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":8080"), "HTTP listen address")
	flag.BoolVar(&cfg.Debug, "debug", getEnvBool("DEBUG", false), "Enable debug logging")

	flag.StringVar(&cfg.AzureOpenAIEndpoint, "aoai-endpoint", getEnv("AZURE_OPENAI_ENDPOINT", ""), "Azure OpenAI resource endpoint")
	flag.StringVar(&cfg.AzureOpenAIKey, "aoai-key", getEnv("AZURE_OPENAI_KEY", ""), "Azure OpenAI API key")
	flag.StringVar(&cfg.AzureOpenAIModel, "aoai-model", getEnv("AZURE_OPENAI_MODEL", ""), "Deployment/model name for chat completions")
	flag.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", getEnv("OPENAI_BASE_URL", ""), "Base URL for an OpenAI-compatible endpoint (non-Azure)")

	flag.StringVar(&cfg.PermittedGroupsColumn, "permitted-groups-column", getEnv("AZURE_SEARCH_PERMITTED_GROUPS_COLUMN", ""), "Search index column holding permitted group ids")
	flag.StringVar(&cfg.GraphEndpoint, "graph-endpoint", getEnv("MICROSOFT_GRAPH_ENDPOINT", ""), "Directory membership endpoint (empty for the global Microsoft Graph)")

	flag.BoolVar(&cfg.UsePromptflow, "use-promptflow", getEnvBool("USE_PROMPTFLOW", false), "Route conversations to the promptflow endpoint instead of chat completions")
	flag.StringVar(&cfg.PromptflowEndpoint, "promptflow-endpoint", getEnv("PROMPTFLOW_ENDPOINT", ""), "Promptflow endpoint URL")
	flag.StringVar(&cfg.PromptflowAPIKey, "promptflow-api-key", getEnv("PROMPTFLOW_API_KEY", ""), "Promptflow API key")
	flag.DurationVar(&cfg.PromptflowResponseTimeout, "promptflow-response-timeout", getEnvDuration("PROMPTFLOW_RESPONSE_TIMEOUT", 30*time.Second), "Promptflow round-trip timeout")
	flag.StringVar(&cfg.PromptflowRequestFieldName, "promptflow-request-field", getEnv("PROMPTFLOW_REQUEST_FIELD_NAME", "query"), "Flow input field carrying the user message")
	flag.StringVar(&cfg.PromptflowResponseFieldName, "promptflow-response-field", getEnv("PROMPTFLOW_RESPONSE_FIELD_NAME", "reply"), "Flow output field carrying the assistant reply")
	flag.StringVar(&cfg.PromptflowCitationsFieldName, "promptflow-citations-field", getEnv("PROMPTFLOW_CITATIONS_FIELD_NAME", "documents"), "Flow output field carrying citations")

	flag.Parse()

	if cols := os.Getenv("AZURE_SEARCH_CONTENT_COLUMNS"); cols != "" {
		cfg.SearchContentColumns = ParseMultiColumns(cols)
	}
	if stop := os.Getenv("AZURE_OPENAI_STOP_SEQUENCE"); stop != "" {
		cfg.AzureOpenAIStopSequence = CommaSeparatedStringToList(stop)
	}

	return cfg
}

// ParseMultiColumns splits a column list on "|" when present, otherwise on
// ",". Substrings are not trimmed.
func ParseMultiColumns(columns string) []string {
	if strings.Contains(columns, "|") {
		return strings.Split(columns, "|")
	}
	return strings.Split(columns, ",")
}

// CommaSeparatedStringToList strips whitespace from the whole string,
// including internal spaces, then splits on ",".
func CommaSeparatedStringToList(s string) []string {
	return strings.Split(strings.ReplaceAll(strings.TrimSpace(s), " ", ""), ",")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
