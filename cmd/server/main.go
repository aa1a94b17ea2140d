package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwvanderstam/wherespace/internal/catalog"
	"github.com/jwvanderstam/wherespace/internal/chunker"
	"github.com/jwvanderstam/wherespace/internal/config"
	"github.com/jwvanderstam/wherespace/internal/embeddings"
	"github.com/jwvanderstam/wherespace/internal/extractor"
	"github.com/jwvanderstam/wherespace/internal/ingest"
	"github.com/jwvanderstam/wherespace/internal/logging"
	"github.com/jwvanderstam/wherespace/internal/modelserver"
	"github.com/jwvanderstam/wherespace/internal/modelstate"
	"github.com/jwvanderstam/wherespace/internal/querycache"
	"github.com/jwvanderstam/wherespace/internal/retriever"
	"github.com/jwvanderstam/wherespace/internal/scanner"
	"github.com/jwvanderstam/wherespace/internal/server"
	"github.com/jwvanderstam/wherespace/internal/vectorstore"
)

func main() {
	var showVersion bool
	var debug bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.BoolVar(&debug, "debug", false, "enable debug-level logging")
	flag.Parse()

	if showVersion {
		fmt.Println("wherespace dev build")
		return
	}

	log := logging.New(debug)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	modelStateStore, err := modelstate.Open(cfg.ModelStatePath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open model state")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	vectorStore, err := vectorstore.Open(ctx, cfg.Database.DSN(), cfg.Database.PoolMin, cfg.Database.PoolMax,
		cfg.Embed.Dimension, cfg.Database.AllowSchemaReset, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect vector store")
	}
	defer vectorStore.Close()

	modelClient := modelserver.New(cfg.Model.BaseURL, cfg.Model.EmbedTimeout, cfg.Model.ChatIdleTimeout, cfg.Model.TagsTimeout, log)
	embedder := embeddings.New(modelClient, cfg.Embed.Model, cfg.Embed.Dimension)
	modelCatalog := catalog.New(modelClient)

	ex := extractor.New(cfg.Workers.MaxDocumentSizeBytes, log)
	splitter := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)

	coordinator := ingest.New(ex, splitter, embedder, vectorStore,
		cfg.Workers.ExtractWorkers, cfg.Workers.EmbedWorkers, cfg.Workers.EmbedProgressEvery, cfg.Workers.MaxDocumentsPerRun, log)

	cache := querycache.New(cfg.Cache.Size, cfg.Cache.TTL)
	dirScanner := scanner.New(cfg.Scanner.SkipDirNames, cfg.Scanner.DocumentExtensions, log)
	retrieverSvc := retriever.New(embedder, cache, vectorStore, cfg.Retrieval.MinSimilarity)

	deps := server.Deps{
		Retriever:       retrieverSvc,
		ChatClient:      modelClient,
		Catalog:         modelCatalog,
		ModelState:      modelStateStore,
		Documents:       vectorStore,
		Cache:           cache,
		Ingest:          coordinator,
		Scanner:         dirScanner,
		TopK:            cfg.Retrieval.TopK,
		MaxPromptTokens: cfg.Retrieval.MaxPromptTokens,
		ChatOptions:     nil,
	}
	srv := server.New(deps, log)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Address(),
		Handler: srv,
	}

	log.Info().Str("address", cfg.HTTP.Address()).Str("data_dir", cfg.DataDir).
		Str("chat_model", modelStateStore.Get()).Msg("starting server")

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	waitForShutdown(httpServer, log)
}

func waitForShutdown(srv *http.Server, log zerolog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Close(); err != nil {
			log.Error().Err(err).Msg("forced close failed")
		}
	}

	log.Info().Msg("server stopped")
}
