// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine wires the mood classifier, tool dispatcher, response
// composer, and session manager into the turn-handling service behind
// the HTTP API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/auraquotes/aura/services/engine/compose"
	"github.com/auraquotes/aura/services/engine/corpus"
	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/index"
	"github.com/auraquotes/aura/services/engine/mood"
	"github.com/auraquotes/aura/services/engine/observability"
	"github.com/auraquotes/aura/services/engine/routes"
	"github.com/auraquotes/aura/services/engine/session"
	"github.com/auraquotes/aura/services/engine/tools"
	"github.com/auraquotes/aura/services/engine/ttl"
	"github.com/auraquotes/aura/services/llm"
)

var tracer = otel.Tracer("aura.engine")

// historyTurnCap bounds how many turns the history endpoint returns.
const historyTurnCap = 100

// Service is the engine's contract to its process host.
type Service interface {
	// Run loads the corpus, starts the TTL cleaner, and serves HTTP
	// until the listener fails or ctx is cancelled.
	Run(ctx context.Context) error

	// Router exposes the HTTP router, mainly for tests.
	Router() *gin.Engine

	// HandleTurn processes one chat turn end to end.
	HandleTurn(ctx context.Context, req datatypes.TurnRequest) (datatypes.TurnResponse, error)

	// GetHistory returns a session's turn log with flow stats.
	GetHistory(ctx context.Context, sessionID string) (datatypes.HistoryResponse, error)

	// Close releases every store and stops background work.
	Close() error
}

// Engine is the production Service implementation.
type Engine struct {
	config Config

	gateway    llm.LLMClient
	idx        index.Index
	embedCache *badger.DB

	quotes       *corpus.Store
	sessionStore *session.Store
	sessions     *session.Manager
	classifier   *mood.Classifier
	dispatcher   *tools.Dispatcher
	composer     *compose.Composer
	loader       *corpus.Loader
	cleaner      *ttl.Cleaner
	lexWatcher   *mood.LexiconWatcher

	router        *gin.Engine
	traceShutdown func(context.Context)
}

var _ Service = (*Engine)(nil)

// New wires a full engine from config.
//
// # Description
//
// Construction follows the degradation policy: a missing or unreachable
// vector database and a disabled trace exporter are warnings, the
// engine runs without them. Only the pieces nothing can replace are
// fatal here: the SQLite stores and the gateway construction itself.
// The corpus load, the other fatal startup step, happens in Run.
func New(config Config) (*Engine, error) {
	config = applyConfigDefaults(config)

	traceShutdown, err := initTracer(context.Background())
	if err != nil {
		slog.Warn("OTLP trace exporter unavailable, continuing without export", "error", err)
		traceShutdown = func(context.Context) {}
	}

	gateway, err := llm.NewClient(config.LLMBackend)
	if err != nil {
		return nil, fmt.Errorf("building LLM gateway: %w", err)
	}

	idx, cache := buildIndex(config, gateway)

	eng, err := assemble(config, gateway, idx, cache)
	if err != nil {
		return nil, err
	}
	eng.traceShutdown = traceShutdown
	return eng, nil
}

// buildIndex connects to Weaviate and builds the cached-embedder index.
// Any failure degrades to a nil index with a warning; the engine then
// runs on rules, templates, and the model fallback alone.
func buildIndex(config Config, gateway llm.LLMClient) (index.Index, *badger.DB) {
	if config.WeaviateURL == "" {
		slog.Info("WEAVIATE_URL not set, running without the vector index")
		return nil, nil
	}

	client, err := index.NewClientFromURL(config.WeaviateURL)
	if err != nil {
		slog.Warn("Invalid Weaviate configuration, running without the vector index",
			"url", config.WeaviateURL, "error", err)
		return nil, nil
	}

	embedder, ok := gateway.(index.Embedder)
	if !ok {
		// Generation may run remote; embeddings always come from the
		// local Ollama instance.
		local, err := llm.NewOllamaClient()
		if err != nil {
			slog.Warn("No embedder available, running without the vector index", "error", err)
			return nil, nil
		}
		embedder = local
	}

	var cache *badger.DB
	if config.EmbedCachePath != "" {
		cache, err = index.OpenCache(config.EmbedCachePath)
	} else {
		cache, err = index.OpenCacheInMemory()
	}
	if err != nil {
		slog.Warn("Embedding cache unavailable, embedding without a cache", "error", err)
	} else {
		cached, cErr := index.NewCachedEmbedder(embedder, cache)
		if cErr != nil {
			slog.Warn("Embedding cache unavailable, embedding without a cache", "error", cErr)
		} else {
			embedder = cached
		}
	}

	vecIdx, err := index.NewVectorIndex(client, embedder, config.Index)
	if err != nil {
		slog.Warn("Vector index unavailable, running without it", "error", err)
		if cache != nil {
			cache.Close()
		}
		return nil, nil
	}
	return vecIdx, cache
}

// wireLexiconOverride applies a lexicon override file to the classifier
// and returns a watcher for later edits. Any failure degrades to the
// embedded lexicon with a warning; a path with no file yet is fine, the
// watcher picks the file up when it appears.
func wireLexiconOverride(path string, classifier *mood.Classifier) *mood.LexiconWatcher {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		slog.Info("Lexicon override not present yet, watching for it", "path", path)
	} else if lex, err := mood.LoadLexiconFile(path); err != nil {
		slog.Warn("Lexicon override failed to load, keeping the embedded lexicon",
			"path", path, "error", err)
	} else {
		classifier.SwapLexicon(lex)
		slog.Info("Lexicon override active", "path", path, "categories", len(lex.Categories))
	}

	watcher, err := mood.NewLexiconWatcher(path, classifier.SwapLexicon)
	if err != nil {
		slog.Warn("Lexicon watcher unavailable, override edits need a restart", "error", err)
		return nil
	}
	return watcher
}

// assemble builds the engine from already constructed external
// dependencies. Tests use it to inject mocks; New uses it after
// building the real gateway and index.
func assemble(config Config, gateway llm.LLMClient, idx index.Index, cache *badger.DB) (*Engine, error) {
	quotes, err := corpus.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening quote store: %w", err)
	}

	sessionStore, err := session.Open(config.DBPath)
	if err != nil {
		quotes.Close()
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	sessions, err := session.NewManager(sessionStore, idx, config.Session)
	if err != nil {
		return nil, err
	}

	classifier, err := mood.NewClassifier(idx, gateway, config.Mood)
	if err != nil {
		return nil, err
	}
	lexWatcher := wireLexiconOverride(config.LexiconPath, classifier)

	dispatcher, err := tools.NewDispatcher(classifier, quotes, sessions, config.Tools)
	if err != nil {
		return nil, err
	}

	composer, err := compose.NewComposer(gateway, idx, config.Compose)
	if err != nil {
		return nil, err
	}

	loader, err := corpus.NewLoader(quotes, idx, config.Loader)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		config:        config,
		gateway:       gateway,
		idx:           idx,
		embedCache:    cache,
		quotes:        quotes,
		sessionStore:  sessionStore,
		sessions:      sessions,
		classifier:    classifier,
		dispatcher:    dispatcher,
		composer:      composer,
		loader:        loader,
		cleaner:       ttl.NewCleaner(sessions, config.TTLConfig()),
		lexWatcher:    lexWatcher,
		traceShutdown: func(context.Context) {},
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("aura-engine"))
	routes.SetupRoutes(router, eng)
	eng.router = router

	return eng, nil
}

// initTracer wires the OTLP/gRPC trace exporter when
// OTEL_EXPORTER_OTLP_ENDPOINT is set. Unset means tracing stays
// process-local; spans are still created, just never exported.
func initTracer(ctx context.Context) (func(context.Context), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, trace export disabled")
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("aura-engine")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down OTLP exporter", "error", err)
		}
	}, nil
}

// Run performs fatal startup work and serves HTTP.
//
// # Description
//
// The corpus load is the one startup step allowed to abort: an engine
// with no quotes has nothing to serve. After it succeeds the TTL
// cleaner starts and the router listens until the listener fails or
// ctx is cancelled, which drains in-flight requests before returning.
func (e *Engine) Run(ctx context.Context) error {
	if _, err := e.loader.Load(ctx); err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}

	if err := e.cleaner.Start(ctx); err != nil {
		return err
	}
	defer e.cleaner.Stop()

	if e.lexWatcher != nil {
		go e.lexWatcher.Start(ctx)
	}

	addr := fmt.Sprintf(":%d", e.config.Port)
	srv := &http.Server{Addr: addr, Handler: e.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}()

	slog.Info("Engine listening", "addr", addr, "llm_backend", e.config.LLMBackend,
		"vector_index", e.idx != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the HTTP router for tests and embedding hosts.
func (e *Engine) Router() *gin.Engine {
	return e.router
}

// HandleTurn processes one chat turn: dispatch the tool pipeline,
// compose the reply, persist both sides of the exchange, and record
// metrics from the turn artifacts.
//
// # Description
//
// Structural validation is the only error path. Everything past it
// degrades inside the dispatcher and composer, so a valid request
// always gets a non-empty reply, even when every backend is down.
func (e *Engine) HandleTurn(ctx context.Context, req datatypes.TurnRequest) (datatypes.TurnResponse, error) {
	ctx, span := tracer.Start(ctx, "HandleTurn")
	defer span.End()

	observability.TurnStarted()
	defer observability.TurnFinished()

	if err := req.Validate(); err != nil {
		observability.RecordTurn(observability.StatusError)
		return datatypes.TurnResponse{}, err
	}

	turn := tools.TurnInput{
		SessionID: req.SessionID,
		Message:   req.Message,
		History:   e.historyFor(ctx, req.SessionID),
	}

	result := e.dispatcher.Run(ctx, turn)
	reply := e.composer.Compose(ctx, turn, result)

	e.recordTurn(ctx, req.Message, result, reply)
	recordToolMetrics(result)

	observability.RecordTurn(observability.StatusOK)
	return datatypes.TurnResponse{
		ResponseText: reply.Text,
		SessionID:    result.SessionID,
		Mood: datatypes.MoodSummary{
			Label:      result.Mood.Label,
			Confidence: result.Mood.Confidence,
			Intensity:  result.Mood.Intensity,
			Source:     result.Mood.Source,
		},
		NavigationSuggestion: result.Navigation,
		ComposePath:          string(reply.Path),
		ToolTrace:            result.Calls,
	}, nil
}

// historyFor loads the recent turns for the dispatcher and composer.
// Unknown or empty sessions start with no history; a read failure
// degrades the turn to history-free rather than failing it.
func (e *Engine) historyFor(ctx context.Context, sessionID string) []datatypes.ConversationTurn {
	if sessionID == "" {
		return nil
	}
	turns, err := e.sessions.RecentTurns(ctx, sessionID, e.config.Session.HistoryWindow)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			slog.Warn("Failed to load session history", "session_id", sessionID, "error", err)
		}
		return nil
	}
	return turns
}

// recordTurn persists the user and assistant turns and feeds the
// utterance back into the index as a learning signal. All failures are
// logged and swallowed; the reply already exists and must be served.
func (e *Engine) recordTurn(ctx context.Context, message string, result *tools.TurnResult, reply compose.Reply) {
	sessionID := result.SessionID
	if sessionID == "" {
		slog.Warn("Turn resolved no session, skipping persistence")
		return
	}

	if _, err := e.sessions.AppendTurn(ctx, sessionID, datatypes.ConversationTurn{
		Role:    datatypes.RoleUser,
		Content: message,
	}); err != nil {
		slog.Warn("Failed to persist user turn", "session_id", sessionID, "error", err)
	}

	if _, err := e.sessions.AppendTurn(ctx, sessionID, datatypes.ConversationTurn{
		Role:    datatypes.RoleAssistant,
		Content: reply.Text,
		Trace: &datatypes.TurnTrace{
			Mood:        result.Mood,
			Calls:       result.Calls,
			ComposePath: string(reply.Path),
		},
	}); err != nil {
		slog.Warn("Failed to persist assistant turn", "session_id", sessionID, "error", err)
	}

	if message != "" {
		if err := e.sessions.RememberUtterance(ctx, sessionID, message, result.Mood.Label); err != nil {
			slog.Debug("Failed to remember utterance", "session_id", sessionID, "error", err)
		}
	}
}

// recordToolMetrics translates a turn's artifacts into metrics.
func recordToolMetrics(result *tools.TurnResult) {
	observability.RecordMoodSource(string(result.Mood.Source))
	for _, call := range result.Calls {
		status := observability.StatusOK
		if call.Error != "" {
			status = observability.StatusError
		}
		observability.ObserveToolCall(call.Tool, status,
			time.Duration(call.DurationMs)*time.Millisecond)
	}
}

// GetHistory returns the session's turn log, oldest first, with
// derived conversation stats.
//
// # Outputs
//
//   - datatypes.HistoryResponse: Up to the last hundred turns.
//   - error: session.ErrSessionNotFound for unknown ids.
func (e *Engine) GetHistory(ctx context.Context, sessionID string) (datatypes.HistoryResponse, error) {
	ctx, span := tracer.Start(ctx, "GetHistory")
	defer span.End()

	turns, err := e.sessions.RecentTurns(ctx, sessionID, historyTurnCap)
	if err != nil {
		return datatypes.HistoryResponse{}, err
	}
	stats, err := e.sessions.Stats(ctx, sessionID)
	if err != nil {
		return datatypes.HistoryResponse{}, err
	}

	return datatypes.HistoryResponse{
		SessionID: sessionID,
		Turns:     turns,
		Stats:     stats,
	}, nil
}

// ListSessions returns known sessions, most recently active first.
func (e *Engine) ListSessions(ctx context.Context, limit int) ([]datatypes.Session, error) {
	return e.sessions.List(ctx, limit)
}

// DeleteSession removes a session, its turns, and its vectors.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// QuotesByCategory returns up to limit quotes, best ranked first.
// Overfetches so the quality ranking has candidates to order.
func (e *Engine) QuotesByCategory(ctx context.Context, category datatypes.Category, limit int) ([]datatypes.Quote, error) {
	_, span := tracer.Start(ctx, "QuotesByCategory")
	defer span.End()

	candidates, err := e.quotes.ByCategory(category, limit*2)
	if err != nil {
		return nil, err
	}
	return corpus.Rank(candidates, limit), nil
}

// AddQuote stores a new quote and mirrors it into the vector index.
// The index write is best effort; the store is the source of truth.
func (e *Engine) AddQuote(ctx context.Context, q datatypes.Quote) (datatypes.Quote, error) {
	_, span := tracer.Start(ctx, "AddQuote")
	defer span.End()

	stored, err := e.quotes.Insert(q)
	if err != nil {
		return datatypes.Quote{}, err
	}

	if e.idx != nil {
		if _, err := e.idx.Insert(ctx, index.Record{
			Kind:     index.KindQuote,
			Text:     stored.Text,
			Category: stored.Category,
			Quality:  corpus.Quality(stored.Text),
			Author:   stored.Author,
		}); err != nil {
			slog.Warn("Failed to index new quote", "quote_id", stored.ID, "error", err)
		}
	}
	return stored, nil
}

// Loader exposes the corpus loader for the CLI load command.
func (e *Engine) Loader() *corpus.Loader {
	return e.loader
}

// Cleaner exposes the TTL cleaner for the CLI cleanup command.
func (e *Engine) Cleaner() *ttl.Cleaner {
	return e.cleaner
}

// Close releases stores, stops the cleaner, and flushes traces.
func (e *Engine) Close() error {
	e.cleaner.Stop()
	e.traceShutdown(context.Background())

	var errs []error
	if e.lexWatcher != nil {
		if err := e.lexWatcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("closing lexicon watcher: %w", err))
		}
	}
	if err := e.quotes.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing quote store: %w", err))
	}
	if err := e.sessionStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing session store: %w", err))
	}
	if e.embedCache != nil {
		if err := e.embedCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedding cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
