package config

const (
	defaultHost           = "http://localhost:11434/v1"
	defaultEmbeddingModel = "embeddinggemma"
	defaultGeneratorModel = "qwen2.5:7b"
	defaultTemperature    = 0.2

	defaultBackend       = "badger"
	defaultStoragePath   = "~/.local/share/scribe/index"
	defaultCollection    = "scribe"
	defaultMinSimilarity = 0.0

	defaultChunkSize           = 2000
	defaultChunkOverlap        = 100
	defaultSummaryWorkers      = 4
	defaultReviewWorkers       = 4
	defaultMaxQueries          = 3
	defaultResultsPerQuery     = 3
	defaultMaxToolRounds       = 5
	defaultRetrievalLimit      = 5
	defaultMaxCorrectionRounds = 2
	defaultRunTimeoutSeconds   = 900

	defaultRetryAttempts  = 5
	defaultRetryBaseMs    = 500
	defaultRetryMaxMs     = 8000
	defaultRetryBackoff   = "exponential"
	defaultSearchResults  = 5
	defaultSearchCacheTTL = 1800

	defaultServerBind = "127.0.0.1:7480"
	defaultUploadDir  = "~/.local/share/scribe/uploads"
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		AI: AI{
			EmbeddingHost:  defaultHost,
			GeneratorHost:  defaultHost,
			EmbeddingModel: defaultEmbeddingModel,
			GeneratorModel: defaultGeneratorModel,
			Temperature:    defaultTemperature,
		},
		Storage: Storage{
			Backend:       defaultBackend,
			Path:          defaultStoragePath,
			Collection:    defaultCollection,
			MinSimilarity: defaultMinSimilarity,
		},
		Pipeline: Pipeline{
			ChunkSize:           defaultChunkSize,
			ChunkOverlap:        defaultChunkOverlap,
			SummaryWorkers:      defaultSummaryWorkers,
			ReviewWorkers:       defaultReviewWorkers,
			MaxQueries:          defaultMaxQueries,
			ResultsPerQuery:     defaultResultsPerQuery,
			MaxToolRounds:       defaultMaxToolRounds,
			RetrievalLimit:      defaultRetrievalLimit,
			MaxCorrectionRounds: defaultMaxCorrectionRounds,
			RunTimeoutSeconds:   defaultRunTimeoutSeconds,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryAttempts,
			BaseDelayMs: defaultRetryBaseMs,
			MaxDelayMs:  defaultRetryMaxMs,
			Backoff:     defaultRetryBackoff,
		},
		WebSearch: WebSearch{
			Enabled:         true,
			MaxResults:      defaultSearchResults,
			CacheTTLSeconds: defaultSearchCacheTTL,
		},
		Server: Server{
			Bind:      defaultServerBind,
			UploadDir: defaultUploadDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
