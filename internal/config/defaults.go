package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/content.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kotae/data/indices/bleve"
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheBackendSQLite
	}
	if cfg.Cache.DatabasePath == "" {
		cfg.Cache.DatabasePath = "/usr/local/var/kotae/data/db/cache.db"
	}
	if cfg.Cache.RedisPrefix == "" {
		cfg.Cache.RedisPrefix = "kotae:cache:"
	}
	if cfg.Cache.RetentionDays == 0 {
		cfg.Cache.RetentionDays = 30
	}

	if cfg.Search.EnabledTypes == nil {
		cfg.Search.EnabledTypes = []string{"post", "page"}
	}
	if cfg.Search.FreeTypes == nil {
		cfg.Search.FreeTypes = []string{"post", "page"}
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 10
	}
	if cfg.Search.MinQueryLength == 0 {
		cfg.Search.MinQueryLength = 2
	}
	if cfg.Search.MaxQueryLength == 0 {
		cfg.Search.MaxQueryLength = 500
	}
	if cfg.Search.CandidateLimit == 0 {
		cfg.Search.CandidateLimit = 50
	}
	if cfg.Search.NativeLimit == 0 {
		cfg.Search.NativeLimit = 10
	}
	if cfg.Search.ContextBudget == 0 {
		cfg.Search.ContextBudget = 3000
	}
	if cfg.Search.ContextWords == 0 {
		cfg.Search.ContextWords = 100
	}
	if cfg.Search.FallbackSources == 0 {
		cfg.Search.FallbackSources = 3
	}
	if cfg.Search.FallbackExcerptWords == 0 {
		cfg.Search.FallbackExcerptWords = 20
	}

	cfg.Ranking.ApplyDefaults()

	if cfg.Synthesis.Provider == "" {
		cfg.Synthesis.Provider = "openai"
	}
	if cfg.Synthesis.MaxTokens == 0 {
		cfg.Synthesis.MaxTokens = 500
	}
	if cfg.Synthesis.Temperature == 0 {
		cfg.Synthesis.Temperature = 0.7
	}
	if cfg.Synthesis.TimeoutSeconds == 0 {
		cfg.Synthesis.TimeoutSeconds = 30
	}

	if cfg.Import.Extensions == nil {
		cfg.Import.Extensions = []string{".json", ".md", ".html", ".txt", ".pdf", ".docx", ".odt", ".rtf", ".xlsx"}
	}
	if cfg.Import.Workers == 0 {
		cfg.Import.Workers = 4
	}
	if cfg.Import.DefaultType == "" {
		cfg.Import.DefaultType = "page"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Import.Directories) > 0 && cfg.Import.Recursive == nil {
		t := true
		cfg.Import.Recursive = &t
	}
}
