package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "localhost"
  port: 8080
storage:
  kb_root: "./kb"
  database_path: "./data/db/kbserve.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "kbserve.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantKB := filepath.Join(dir, "kb")
	if cfg.Storage.KBRoot != wantKB {
		t.Errorf("kb_root = %s, want %s", cfg.Storage.KBRoot, wantKB)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  model: "mistral"
embedding:
  model: "nomic-embed-text"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KBSERVE_LLM_MODEL", "llama3")
	t.Setenv("KBSERVE_EMBED_MODEL", "mxbai-embed-large")
	t.Setenv("KBSERVE_OLLAMA_URL", "http://ollama:11434")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Model != "llama3" {
		t.Errorf("llm model = %s, want env override", cfg.LLM.Model)
	}
	if cfg.Embedding.Model != "mxbai-embed-large" {
		t.Errorf("embedding model = %s, want env override", cfg.Embedding.Model)
	}
	if cfg.LLM.OllamaURL != "http://ollama:11434" || cfg.Embedding.OllamaURL != "http://ollama:11434" {
		t.Errorf("ollama url override not applied: %s / %s", cfg.LLM.OllamaURL, cfg.Embedding.OllamaURL)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("default embedding provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Resolve.SimilarityThreshold != 0.9 {
		t.Errorf("default similarity threshold: got %f, want 0.9", cfg.Resolve.SimilarityThreshold)
	}
	if cfg.Resolve.TopK != 4 {
		t.Errorf("default top_k: got %d", cfg.Resolve.TopK)
	}
	if cfg.Resolve.KeywordWeight != 0.3 || cfg.Resolve.SemanticWeight != 0.7 {
		t.Errorf("default fusion weights: got keyword=%f semantic=%f",
			cfg.Resolve.KeywordWeight, cfg.Resolve.SemanticWeight)
	}
	if cfg.Watch.Extensions == nil {
		t.Error("watch extensions should be set by default")
	}
	if cfg.Watch.Extensions[0] != ".pdf" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestApplyDefaults_purelyVectorWeights(t *testing.T) {
	cfg := &Config{Resolve: ResolveConfig{SemanticWeight: 1.0}}
	ApplyDefaults(cfg)
	if cfg.Resolve.KeywordWeight != 0 {
		t.Errorf("explicit semantic-only weights overwritten: keyword=%f", cfg.Resolve.KeywordWeight)
	}
}

func TestWatchConfig_EnabledOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.EnabledOrDefault(); !got {
			t.Errorf("EnabledOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Enabled: &f}
		if got := w.EnabledOrDefault(); got {
			t.Errorf("EnabledOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
