package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.KBRoot == "" {
		cfg.Storage.KBRoot = "/usr/local/var/kbserve/kb"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kbserve/data/db/kbserve.db"
	}
	if cfg.Storage.VectorIndexDir == "" {
		cfg.Storage.VectorIndexDir = "/usr/local/var/kbserve/data/indices/vector"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/kbserve/data/indices/bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "mistral"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 120
	}
	if cfg.Resolve.SimilarityThreshold == 0 {
		cfg.Resolve.SimilarityThreshold = 0.9
	}
	if cfg.Resolve.TopK == 0 {
		cfg.Resolve.TopK = 4
	}
	if cfg.Resolve.ChunkSize == 0 {
		cfg.Resolve.ChunkSize = 200
	}
	if cfg.Resolve.ChunkOverlap == 0 {
		cfg.Resolve.ChunkOverlap = 40
	}
	if cfg.Resolve.KeywordWeight == 0 && cfg.Resolve.SemanticWeight == 0 {
		cfg.Resolve.KeywordWeight = 0.3
		cfg.Resolve.SemanticWeight = 0.7
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".docx", ".xlsx", ".ods", ".odt", ".rtf", ".txt", ".md", ".html"}
	}
}
