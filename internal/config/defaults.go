package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kikoe/data/db/kikoe.db"
	}
	if cfg.Storage.LexicalIndexPath == "" {
		cfg.Storage.LexicalIndexPath = "/usr/local/var/kikoe/data/indices/lexical"
	}
	if cfg.Transcription.Backend == "" {
		cfg.Transcription.Backend = "whisper"
	}
	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = "medium"
	}
	if cfg.Transcription.HelperPath == "" {
		cfg.Transcription.HelperPath = "kikoe-whisper"
	}
	if cfg.Transcription.TimeoutSeconds == 0 {
		cfg.Transcription.TimeoutSeconds = 3600
	}
	if cfg.Diarization.Backend == "" {
		cfg.Diarization.Backend = "pyannote"
	}
	if cfg.Diarization.HelperPath == "" {
		cfg.Diarization.HelperPath = "kikoe-diarize"
	}
	if cfg.Diarization.TimeoutSeconds == 0 {
		cfg.Diarization.TimeoutSeconds = 1800
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
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.MaxChunkChars == 0 {
		cfg.Search.MaxChunkChars = 1200
	}
	if cfg.Search.OverlapChars == 0 {
		cfg.Search.OverlapChars = 150
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 50
	}
	if cfg.Search.SimilarityFloor == 0 {
		cfg.Search.SimilarityFloor = 0.25
	}
	if cfg.Search.RerankWeight == 0 {
		cfg.Search.RerankWeight = 0.3
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 2
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 3
	}
	if cfg.Pipeline.RetryBackoffSeconds == 0 {
		cfg.Pipeline.RetryBackoffSeconds = 5
	}
	if cfg.Pipeline.MinFileBytes == 0 {
		cfg.Pipeline.MinFileBytes = 10 * 1024
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".mp4", ".mkv", ".mov", ".webm"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
