// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"os"
	"strconv"
	"time"

	"github.com/auraquotes/aura/services/engine/compose"
	"github.com/auraquotes/aura/services/engine/corpus"
	"github.com/auraquotes/aura/services/engine/index"
	"github.com/auraquotes/aura/services/engine/mood"
	"github.com/auraquotes/aura/services/engine/session"
	"github.com/auraquotes/aura/services/engine/tools"
	"github.com/auraquotes/aura/services/engine/ttl"
)

// Config assembles every engine setting in one place.
//
// # Description
//
// Connection settings live on the top level; behavioral tunables live
// in the per-component sub-configs, which New passes through to the
// component constructors. Each constructor corrects out-of-range
// values itself, so a zero Config is usable after
// applyConfigDefaults.
//
// LoadConfig reads the documented environment variables; code that
// wants fixed settings (tests, embedded use) builds a Config directly.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// DBPath is the directory for the SQLite stores. ":memory:" keeps
	// both stores in memory.
	DBPath string

	// WeaviateURL is the vector database endpoint, scheme included.
	// Empty runs the engine without an index: mood classification
	// keeps its rule and model passes and the composer keeps its
	// templates, only retrieval goes dark.
	WeaviateURL string

	// EmbedCachePath is the directory for the embedding cache. Empty
	// keeps the cache in memory.
	EmbedCachePath string

	// LLMBackend selects the gateway: "local" (Ollama) or "openai".
	LLMBackend string

	// LexiconPath points at an optional mood-lexicon override file.
	// When set, the file replaces the embedded lexicon and is watched
	// for edits. Empty uses the embedded lexicon.
	LexiconPath string

	// QuotesSource and PromptsSource override the embedded seed data.
	// Either may be a local path or a gs:// URI.
	QuotesSource  string
	PromptsSource string

	// SessionTTL is the idle age past which sessions are deleted.
	SessionTTL time.Duration

	// CleanupInterval is how often the TTL cleaner runs.
	CleanupInterval time.Duration

	Mood    mood.Config
	Index   index.Config
	Session session.Config
	Tools   tools.Config
	Compose compose.Config
	Loader  corpus.LoaderConfig
}

// DefaultConfig returns the documented defaults without consulting the
// environment.
func DefaultConfig() Config {
	return Config{
		Port:            7171,
		DBPath:          "data",
		LLMBackend:      "local",
		SessionTTL:      24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
		Mood:            mood.DefaultConfig(),
		Index:           index.DefaultConfig(),
		Session:         session.DefaultConfig(),
		Tools:           tools.DefaultConfig(),
		Compose:         compose.DefaultConfig(),
		Loader:          corpus.DefaultLoaderConfig(),
	}
}

// LoadConfig builds a Config from the environment.
//
// # Environment
//
//   - AURA_PORT (default: 7171)
//   - AURA_DB_PATH (default: "data")
//   - WEAVIATE_URL (default: unset, runs without the vector index)
//   - AURA_EMBED_CACHE_PATH (default: unset, in-memory cache)
//   - LLM_BACKEND (default: "local")
//   - AURA_LEXICON_PATH (default: unset, embedded lexicon only)
//   - AURA_QUOTES_SOURCE / AURA_PROMPTS_SOURCE (default: embedded seeds)
//   - AURA_GCS_CREDENTIALS (default: application default credentials)
//   - AURA_SESSION_TTL (default: 24h)
//   - AURA_CLEANUP_INTERVAL (default: 1h)
//   - AURA_RULE_MATCH_THRESHOLD (default: 2)
//   - AURA_RULE_MARGIN (default: 1)
//   - AURA_RULE_CONFIDENCE (default: 0.8)
//   - AURA_RETRIEVAL_TOPK (default: 5)
//   - AURA_SIMILARITY_FLOOR (default: 0.5)
//   - AURA_CONFIDENCE_FLOOR (default: 0.5)
//   - AURA_LEARN_FROM_TURNS (default: false)
//   - AURA_ROUTING_THRESHOLD (default: 0.3)
//   - AURA_INTENSITY_THRESHOLD (default: 0.6)
//   - AURA_QUOTE_COUNT (default: 3)
//   - AURA_HISTORY_WINDOW (default: 5)
//   - AURA_CONTEXT_TOKEN_BUDGET (default: 1024)
//   - AURA_GENERATE_TIMEOUT (default: 8s)
//   - AURA_TEMPERATURE (default: 0.7)
//   - AURA_INDEX_WORKERS (default: 4)
//
// The gateway reads its own settings (OLLAMA_BASE_URL, OLLAMA_MODEL,
// OLLAMA_EMBED_MODEL, OPENAI_API_KEY, OPENAI_MODEL) when constructed.
func LoadConfig() Config {
	config := DefaultConfig()

	config.Port = getEnvInt("AURA_PORT", config.Port)
	config.DBPath = getEnvString("AURA_DB_PATH", config.DBPath)
	config.WeaviateURL = getEnvString("WEAVIATE_URL", "")
	config.EmbedCachePath = getEnvString("AURA_EMBED_CACHE_PATH", "")
	config.LLMBackend = getEnvString("LLM_BACKEND", config.LLMBackend)
	config.LexiconPath = getEnvString("AURA_LEXICON_PATH", "")
	config.QuotesSource = getEnvString("AURA_QUOTES_SOURCE", "")
	config.PromptsSource = getEnvString("AURA_PROMPTS_SOURCE", "")
	config.SessionTTL = getEnvDuration("AURA_SESSION_TTL", config.SessionTTL)
	config.CleanupInterval = getEnvDuration("AURA_CLEANUP_INTERVAL", config.CleanupInterval)

	config.Mood.RuleMatchThreshold = getEnvInt("AURA_RULE_MATCH_THRESHOLD", config.Mood.RuleMatchThreshold)
	config.Mood.RuleMargin = getEnvInt("AURA_RULE_MARGIN", config.Mood.RuleMargin)
	config.Mood.RuleConfidence = getEnvFloat("AURA_RULE_CONFIDENCE", config.Mood.RuleConfidence)
	config.Mood.RetrievalTopK = getEnvInt("AURA_RETRIEVAL_TOPK", config.Mood.RetrievalTopK)
	config.Mood.SimilarityFloor = getEnvFloat("AURA_SIMILARITY_FLOOR", config.Mood.SimilarityFloor)
	config.Mood.ConfidenceFloor = getEnvFloat("AURA_CONFIDENCE_FLOOR", config.Mood.ConfidenceFloor)
	config.Mood.IncludeLearnedTurns = getEnvBool("AURA_LEARN_FROM_TURNS", config.Mood.IncludeLearnedTurns)

	config.Index.DefaultMinSimilarity = config.Mood.SimilarityFloor

	config.Session.HistoryWindow = getEnvInt("AURA_HISTORY_WINDOW", config.Session.HistoryWindow)
	config.Session.ContextTokenBudget = getEnvInt("AURA_CONTEXT_TOKEN_BUDGET", config.Session.ContextTokenBudget)

	config.Tools.RoutingThreshold = getEnvFloat("AURA_ROUTING_THRESHOLD", config.Tools.RoutingThreshold)
	config.Tools.IntensityThreshold = getEnvFloat("AURA_INTENSITY_THRESHOLD", config.Tools.IntensityThreshold)
	config.Tools.QuoteCount = getEnvInt("AURA_QUOTE_COUNT", config.Tools.QuoteCount)

	config.Compose.RoutingThreshold = config.Tools.RoutingThreshold
	config.Compose.GenerateTimeout = getEnvDuration("AURA_GENERATE_TIMEOUT", config.Compose.GenerateTimeout)
	config.Compose.HistoryWindow = config.Session.HistoryWindow
	config.Compose.Temperature = float32(getEnvFloat("AURA_TEMPERATURE", float64(config.Compose.Temperature)))

	config.Loader.QuotesSource = config.QuotesSource
	config.Loader.PromptsSource = config.PromptsSource
	config.Loader.GCSCredentialsFile = getEnvString("AURA_GCS_CREDENTIALS", "")
	config.Loader.IndexWorkers = getEnvInt("AURA_INDEX_WORKERS", config.Loader.IndexWorkers)

	return config
}

// applyConfigDefaults fills zero-valued top-level fields so a partial
// Config (or the zero value) behaves like DefaultConfig. Component
// sub-configs are corrected by their own constructors.
func applyConfigDefaults(config Config) Config {
	defaults := DefaultConfig()

	if config.Port < 1 || config.Port > 65535 {
		config.Port = defaults.Port
	}
	if config.DBPath == "" {
		config.DBPath = defaults.DBPath
	}
	if config.LLMBackend == "" {
		config.LLMBackend = defaults.LLMBackend
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaults.SessionTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	config.Loader.QuotesSource = firstNonEmpty(config.Loader.QuotesSource, config.QuotesSource)
	config.Loader.PromptsSource = firstNonEmpty(config.Loader.PromptsSource, config.PromptsSource)

	return config
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// TTLConfig derives the cleaner schedule from the engine settings.
func (c Config) TTLConfig() ttl.Config {
	cfg := ttl.DefaultConfig()
	cfg.SessionTTL = c.SessionTTL
	cfg.Interval = c.CleanupInterval
	return cfg
}

// getEnvString returns an environment variable, or defaultVal if not set.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns an environment variable as int, or defaultVal if
// not set or invalid.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvFloat returns an environment variable as float64, or
// defaultVal if not set or invalid.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

// getEnvBool returns an environment variable as bool, or defaultVal if
// not set or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// getEnvDuration returns an environment variable as a duration, or
// defaultVal if not set or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
