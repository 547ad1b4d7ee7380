// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/askdb-ai/askdb/services/llm"
	"github.com/askdb-ai/askdb/services/orchestrator/config"
	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
	"github.com/askdb-ai/askdb/services/orchestrator/memory"
	"github.com/askdb-ai/askdb/services/orchestrator/routes"
	"github.com/askdb-ai/askdb/services/orchestrator/services"
	"github.com/askdb-ai/askdb/services/orchestrator/sessions"
	"github.com/askdb-ai/askdb/services/orchestrator/sqlstore"
	"github.com/askdb-ai/askdb/services/orchestrator/workflow"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "askdb-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("askdb-orchestrator")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// connectWeaviate returns a client for the long-term memory store, or nil
// to run in lightweight mode (session transcripts only).
func connectWeaviate(rawURL string) *weaviate.Client {
	// Trim quotes and whitespace in case the runtime passes them literally.
	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" || !strings.Contains(rawURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (session transcripts only).")
		return nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
			"url", rawURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

func openBadger(path string) (*badger.DB, error) {
	if path == "" {
		slog.Warn("ASKDB_BADGER_PATH not set, checkpoints and transcripts will not survive restarts")
		return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	}
	return badger.Open(badger.DefaultOptions(path))
}

func newLLMClient(backendType string) (llm.LLMClient, error) {
	switch backendType {
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama", "value", backendType)
		return llm.NewOllamaClient()
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using process environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateClient := connectWeaviate(cfg.WeaviateURL)

	var embedder memory.Embedder
	if weaviateClient != nil {
		ollamaEmbedder, err := memory.NewOllamaEmbedder(os.Getenv("OLLAMA_BASE_URL"), cfg.EmbeddingModel)
		if err != nil {
			log.Fatalf("Failed to initialize embedder: %v", err)
		}
		embedder = ollamaEmbedder
	}

	badgerDB, err := openBadger(cfg.BadgerPath)
	if err != nil {
		log.Fatalf("Failed to open badger database: %v", err)
	}
	defer badgerDB.Close()

	memoryStore, err := memory.NewStore(badgerDB, weaviateClient, embedder)
	if err != nil {
		log.Fatalf("Failed to initialize memory store: %v", err)
	}
	defer memoryStore.Close()

	sqlStore, err := sqlstore.Open(cfg.SQLiteDSN)
	if err != nil {
		log.Fatalf("Failed to open SQL database: %v", err)
	}
	defer sqlStore.Close()

	log.Println("Configuring the LLM Client")
	llmClient, err := newLLMClient(cfg.LLMBackend)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	wf := workflow.New(
		workflow.NewLLMClassifier(llmClient),
		workflow.NewLLMSynthesizer(llmClient, "SQLite"),
		sqlStore,
		sqlStore,
		workflow.NewLLMComposer(llmClient),
		workflow.NewLLMResponder(llmClient),
		memoryStore,
		workflow.NewBadgerCheckpointStore(badgerDB),
	)
	turnService := services.NewTurnService(
		sessions.NewRegistry(), wf, memoryStore,
		cfg.ConfirmMaxTicks, cfg.ConfirmTickInterval,
	)

	router := gin.Default()
	router.Use(otelgin.Middleware("askdb-orchestrator"))
	routes.SetupRoutes(router, turnService)

	log.Println("Starting the orchestrator server on port ", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
