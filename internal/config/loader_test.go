package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  embeddings:
    name: openai
    api_key: sk-test
    model: text-embedding-3-small
memory:
  postgres_dsn: postgres://localhost:5432/loreweave
  embedding_dimensions: 1536
session:
  agent_timeout: 45s
  max_idle: 1h
  history_limit: 10
auth:
  jwt_secret: secret
  issuer: loreweave
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("LLM = %+v", cfg.Providers.LLM)
	}
	if cfg.Memory.EmbeddingDimensions != 1536 {
		t.Errorf("EmbeddingDimensions = %d", cfg.Memory.EmbeddingDimensions)
	}
	if cfg.Session.AgentTimeout != 45*time.Second {
		t.Errorf("AgentTimeout = %v", cfg.Session.AgentTimeout)
	}
	if cfg.Session.MaxIdle != time.Hour {
		t.Errorf("MaxIdle = %v", cfg.Session.MaxIdle)
	}
	if cfg.Auth.JWTSecret != "secret" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := validYAML + "\nnot_a_real_key: true\n"
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("unknown top-level field accepted")
	}
}

func TestLoadFromReader_Fallbacks(t *testing.T) {
	yaml := strings.Replace(validYAML, "providers:", `providers:
  llm_fallbacks:
    - name: ollama
      base_url: http://localhost:11434
      model: llama3.1
  embeddings_fallbacks:
    - name: ollama
      base_url: http://localhost:11434
      model: nomic-embed-text`, 1)

	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Errorf("LLMFallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	if len(cfg.Providers.EmbeddingsFallbacks) != 1 || cfg.Providers.EmbeddingsFallbacks[0].Model != "nomic-embed-text" {
		t.Errorf("EmbeddingsFallbacks = %+v", cfg.Providers.EmbeddingsFallbacks)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadFromReader(strings.NewReader(validYAML))
		if err != nil {
			t.Fatalf("valid config rejected: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "missing llm provider",
			mutate:  func(c *Config) { c.Providers.LLM.Name = "" },
			wantErr: "providers.llm.name",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Memory.PostgresDSN = "" },
			wantErr: "postgres_dsn",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "jwt_secret",
		},
		{
			name:    "negative agent timeout",
			mutate:  func(c *Config) { c.Session.AgentTimeout = -time.Second },
			wantErr: "agent_timeout",
		},
		{
			name:    "incomplete tls",
			mutate:  func(c *Config) { c.Server.TLS = &TLSConfig{CertFile: "cert.pem"} },
			wantErr: "tls",
		},
		{
			name:    "unnamed fallback",
			mutate:  func(c *Config) { c.Providers.LLMFallbacks = []ProviderEntry{{Model: "x"}} },
			wantErr: "llm_fallbacks[0]",
		},
		{
			name:    "unnamed embeddings fallback",
			mutate:  func(c *Config) { c.Providers.EmbeddingsFallbacks = []ProviderEntry{{Model: "x"}} },
			wantErr: "embeddings_fallbacks[0]",
		},
		{
			name: "embeddings fallbacks without primary",
			mutate: func(c *Config) {
				c.Providers.Embeddings = ProviderEntry{}
				c.Providers.EmbeddingsFallbacks = []ProviderEntry{{Name: "ollama", Model: "nomic-embed-text"}}
			},
			wantErr: "requires a primary",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}

	if err := Validate(valid()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("empty config accepted")
	}
	for _, want := range []string{"providers.llm.name", "postgres_dsn", "jwt_secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("LOREWEAVE_TEST_API_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := strings.Replace(validYAML, "api_key: sk-test", "api_key: ${LOREWEAVE_TEST_API_KEY}", 1)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want value from environment", cfg.Providers.LLM.APIKey)
	}
}
