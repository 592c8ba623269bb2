// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config assembles a types.PipelineConfig from defaults, the YAML
// config file, environment variables, and the .secrets/ directory.
//
// Precedence, highest first: command flags bound by the caller, environment
// (PREP_PIPELINE_* or the bare credential names such as NCBI_API_KEY),
// the config file, .secrets/ files for credentials, and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/prep-pipeline/internal/extract"
	"github.com/pdiddy/prep-pipeline/internal/harvest"
	"github.com/pdiddy/prep-pipeline/internal/secrets"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PREP_PIPELINE"

	// FileName is the config file name searched for without extension.
	FileName = "prep-pipeline"

	DefaultAbstractsPath  = "patients_abstracts.txt"
	DefaultExtractionPath = "prep_extractions.jsonl"
	DefaultReportPath     = "final_patient_reports.csv"
	DefaultUserAgent      = "prep-pipeline/0.1"
	DefaultTool           = "prep-pipeline"
)

// Viper keys.
const (
	KeyPubMedAPIKey     = "pubmed.api_key"
	KeyPubMedEmail      = "pubmed.email"
	KeyPubMedTool       = "pubmed.tool"
	KeyPubMedTimeout    = "pubmed.timeout"
	KeyPubMedUserAgent  = "pubmed.user_agent"
	KeyHarvestQuery     = "harvest.query"
	KeyHarvestMaxCount  = "harvest.max_count"
	KeyHarvestBatchSize = "harvest.batch_size"
	KeyHarvestDelay     = "harvest.batch_delay"
	KeyHarvestAttempts  = "harvest.retry.max_attempts"
	KeyHarvestBackoff   = "harvest.retry.backoff"
	KeyHarvestOutput    = "harvest.output_path"
	KeyBackend          = "extraction.backend"
	KeyModel            = "extraction.model"
	KeyBaseURL          = "extraction.base_url"
	KeyOpenRouterAPIKey = "extraction.openrouter_api_key"
	KeyAnthropicAPIKey  = "extraction.anthropic_api_key"
	KeyExtractMaxCount  = "extraction.max_count"
	KeyExtractDelay     = "extraction.request_delay"
	KeyExtractInput     = "extraction.input_path"
	KeyExtractOutput    = "extraction.output_path"
	KeyMatchMaxResults  = "match.max_results"
	KeyMatchDelay       = "match.request_delay"
	KeyMatchMemoSize    = "match.memo_size"
	KeyMatchCachePath   = "match.cache_path"
	KeyMatchInput       = "match.input_path"
	KeyMatchOutput      = "match.output_path"
)

// Default returns the built-in configuration.
func Default() types.PipelineConfig {
	return types.PipelineConfig{
		PubMed: types.PubMedConfig{
			HTTPConfig: types.HTTPConfig{Timeout: 60 * time.Second, UserAgent: DefaultUserAgent},
			Tool:       DefaultTool,
		},
		Harvest: types.HarvestConfig{
			Query:      harvest.DefaultQuery,
			MaxCount:   1000,
			BatchSize:  200,
			BatchDelay: time.Second,
			Retry:      types.RetryConfig{MaxAttempts: 3, Backoff: 5 * time.Second},
			OutputPath: DefaultAbstractsPath,
		},
		Extraction: types.ExtractionConfig{
			AIConfig:     types.AIConfig{Backend: types.BackendOllama, Model: extract.DefaultModel},
			MaxCount:     1000,
			RequestDelay: 500 * time.Millisecond,
			InputPath:    DefaultAbstractsPath,
			OutputPath:   DefaultExtractionPath,
		},
		Match: types.MatchConfig{
			MaxResults: 1,
			MemoSize:   256,
			InputPath:  DefaultExtractionPath,
			OutputPath: DefaultReportPath,
		},
	}
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		KeyPubMedTool:       d.PubMed.Tool,
		KeyPubMedTimeout:    d.PubMed.Timeout,
		KeyPubMedUserAgent:  d.PubMed.UserAgent,
		KeyHarvestQuery:     d.Harvest.Query,
		KeyHarvestMaxCount:  d.Harvest.MaxCount,
		KeyHarvestBatchSize: d.Harvest.BatchSize,
		KeyHarvestDelay:     d.Harvest.BatchDelay,
		KeyHarvestAttempts:  d.Harvest.Retry.MaxAttempts,
		KeyHarvestBackoff:   d.Harvest.Retry.Backoff,
		KeyHarvestOutput:    d.Harvest.OutputPath,
		KeyBackend:          string(d.Extraction.Backend),
		KeyModel:            d.Extraction.Model,
		KeyExtractMaxCount:  d.Extraction.MaxCount,
		KeyExtractDelay:     d.Extraction.RequestDelay,
		KeyExtractInput:     d.Extraction.InputPath,
		KeyExtractOutput:    d.Extraction.OutputPath,
		KeyMatchMaxResults:  d.Match.MaxResults,
		KeyMatchDelay:       d.Match.RequestDelay,
		KeyMatchMemoSize:    d.Match.MemoSize,
		KeyMatchInput:       d.Match.InputPath,
		KeyMatchOutput:      d.Match.OutputPath,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials also answer to their conventional bare names, which is
	// how .env files usually spell them.
	bare := map[string]string{
		KeyPubMedAPIKey:     "NCBI_API_KEY",
		KeyPubMedEmail:      "CONTACT_EMAIL",
		KeyOpenRouterAPIKey: "OPENROUTER_API_KEY",
		KeyAnthropicAPIKey:  "ANTHROPIC_API_KEY",
	}
	for k, name := range bare {
		_ = v.BindEnv(k, envName(k), name)
	}
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads the effective configuration from v. Credentials that are
// unset or still placeholders fall back to the matching .secrets/ file.
func Load(v *viper.Viper, loaded map[string]string) types.PipelineConfig {
	cfg := types.PipelineConfig{
		PubMed: types.PubMedConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   v.GetDuration(KeyPubMedTimeout),
				UserAgent: v.GetString(KeyPubMedUserAgent),
			},
			APIKey: credential(v.GetString(KeyPubMedAPIKey), loaded, secrets.NCBIAPIKey),
			Email:  credential(v.GetString(KeyPubMedEmail), loaded, secrets.ContactEmail),
			Tool:   v.GetString(KeyPubMedTool),
		},
		Harvest: types.HarvestConfig{
			Query:      v.GetString(KeyHarvestQuery),
			MaxCount:   v.GetInt(KeyHarvestMaxCount),
			BatchSize:  v.GetInt(KeyHarvestBatchSize),
			BatchDelay: v.GetDuration(KeyHarvestDelay),
			Retry: types.RetryConfig{
				MaxAttempts: v.GetInt(KeyHarvestAttempts),
				Backoff:     v.GetDuration(KeyHarvestBackoff),
			},
			OutputPath: v.GetString(KeyHarvestOutput),
		},
		Extraction: types.ExtractionConfig{
			AIConfig: types.AIConfig{
				Backend:          types.AIBackendName(strings.ToLower(v.GetString(KeyBackend))),
				Model:            v.GetString(KeyModel),
				BaseURL:          v.GetString(KeyBaseURL),
				OpenRouterAPIKey: credential(v.GetString(KeyOpenRouterAPIKey), loaded, secrets.OpenRouterAPIKey),
				AnthropicAPIKey:  credential(v.GetString(KeyAnthropicAPIKey), loaded, secrets.AnthropicAPIKey),
			},
			MaxCount:     v.GetInt(KeyExtractMaxCount),
			RequestDelay: v.GetDuration(KeyExtractDelay),
			InputPath:    v.GetString(KeyExtractInput),
			OutputPath:   v.GetString(KeyExtractOutput),
		},
		Match: types.MatchConfig{
			MaxResults:   v.GetInt(KeyMatchMaxResults),
			RequestDelay: v.GetDuration(KeyMatchDelay),
			MemoSize:     v.GetInt(KeyMatchMemoSize),
			CachePath:    v.GetString(KeyMatchCachePath),
			InputPath:    v.GetString(KeyMatchInput),
			OutputPath:   v.GetString(KeyMatchOutput),
		},
	}
	return cfg
}

func credential(value string, loaded map[string]string, key string) string {
	if !types.IsPlaceholder(value) {
		return value
	}
	return secrets.Lookup(loaded, key, value)
}

// Mask hides all but the last four characters of a credential.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// ToYAML renders cfg as YAML. Credentials are masked unless reveal is set.
func ToYAML(cfg types.PipelineConfig, reveal bool) ([]byte, error) {
	if !reveal {
		cfg.PubMed.APIKey = Mask(cfg.PubMed.APIKey)
		cfg.Extraction.OpenRouterAPIKey = Mask(cfg.Extraction.OpenRouterAPIKey)
		cfg.Extraction.AnthropicAPIKey = Mask(cfg.Extraction.AnthropicAPIKey)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the built-in configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s already exists (use --force to overwrite)", types.ErrConfiguration, path)
		}
	}
	data, err := ToYAML(Default(), true)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
