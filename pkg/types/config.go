// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the prep-pipeline stages:
// configuration values, extraction records, and the error kinds every stage
// reports.
package types

import (
	"strings"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "prep-pipeline/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// PubMedConfig holds the NCBI E-utilities credentials and etiquette fields.
type PubMedConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey is the NCBI API key. Required by the harvest stage.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Email is the contact address NCBI asks clients to send with each request.
	Email string `json:"email" yaml:"email"`

	// Tool identifies this program to NCBI.
	Tool string `json:"tool" yaml:"tool"`
}

// placeholderKeys lists credential values shipped in sample configs.
var placeholderKeys = map[string]bool{
	"your_ncbi_api_key_here": true,
	"your_ncbi_api_key":      true,
	"changeme":               true,
}

// IsPlaceholder reports whether a credential is empty or an unedited
// sample value such as "YOUR_NCBI_API_KEY" or "<api-key>".
func IsPlaceholder(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	lower := strings.ToLower(v)
	if placeholderKeys[lower] {
		return true
	}
	if strings.HasPrefix(lower, "your_") || strings.HasPrefix(lower, "your-") {
		return true
	}
	return strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">")
}

// RetryConfig describes a fixed-delay retry policy in serializable form.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Backoff is the pause between attempts.
	Backoff time.Duration `json:"backoff" yaml:"backoff"`
}

// HarvestConfig holds settings for the harvest stage.
type HarvestConfig struct {
	// Query is the PubMed boolean query used to find case reports.
	Query string `json:"query" yaml:"query"`

	// MaxCount caps the number of abstracts written.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// BatchSize is the EFetch page size (default 200).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// BatchDelay is the politeness pause after every batch (default 1s).
	BatchDelay time.Duration `json:"batch_delay" yaml:"batch_delay"`

	// Retry governs the per-batch EFetch retries (default 3 attempts, 5s apart).
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// OutputPath is the raw abstracts file.
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// AIBackendName selects the model provider used by the extract stage.
type AIBackendName string

const (
	BackendOllama     AIBackendName = "ollama"
	BackendOpenRouter AIBackendName = "openrouter"
	BackendAnthropic  AIBackendName = "anthropic"
)

// AIConfig holds shared settings for stages that call a language model.
type AIConfig struct {
	// Backend selects the provider: ollama, openrouter, or anthropic.
	Backend AIBackendName `json:"backend" yaml:"backend"`

	// Model is the model identifier (e.g. "llama3.2").
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the provider endpoint (Ollama host by default).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// OpenRouterAPIKey authenticates against the OpenRouter routing service.
	OpenRouterAPIKey string `json:"openrouter_api_key,omitempty" yaml:"openrouter_api_key,omitempty"`

	// AnthropicAPIKey authenticates against the Anthropic API.
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" yaml:"anthropic_api_key,omitempty"`
}

// ExtractionConfig holds settings for the extract stage.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// MaxCount caps the number of input lines considered.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// RequestDelay is the pause between consecutive model calls (default 0.5s).
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay"`

	// InputPath is the raw abstracts file.
	InputPath string `json:"input_path" yaml:"input_path"`

	// OutputPath is the JSONL extraction file.
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// MatchConfig holds settings for the match stage.
type MatchConfig struct {
	// MaxResults is the number of PubMed hits requested per record (default 1).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// RequestDelay is the pause between consecutive searches.
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay"`

	// MemoSize bounds the in-run memo of repeated queries (default 256).
	MemoSize int `json:"memo_size" yaml:"memo_size"`

	// CachePath is an optional SQLite file that persists matches across runs.
	CachePath string `json:"cache_path,omitempty" yaml:"cache_path,omitempty"`

	// InputPath is the JSONL extraction file.
	InputPath string `json:"input_path" yaml:"input_path"`

	// OutputPath is the CSV report.
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	PubMed     PubMedConfig     `json:"pubmed" yaml:"pubmed"`
	Harvest    HarvestConfig    `json:"harvest" yaml:"harvest"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Match      MatchConfig      `json:"match" yaml:"match"`
}
