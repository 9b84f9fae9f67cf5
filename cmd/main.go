package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/ingest"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/sqlitestore"
	"pdf-rag/internal/store"
	"pdf-rag/internal/streaming"
)

const configFilePath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a PDF to ingest (more may follow as arguments)")
	query := flag.String("query", "", "Question to be answered")
	docs := flag.String("docs", "", "Comma separated document ids to search (default: all ready documents)")
	historyPath := flag.String("history", "", "JSON file with previous conversation turns")
	list := flag.Bool("list", false, "List documents")
	status := flag.String("status", "", "Only list documents with this status")
	page := flag.Int("page", 1, "Page of the document listing")
	limit := flag.Int("limit", 20, "Documents per page")
	deleteID := flag.String("delete", "", "Delete the document with this id")
	reset := flag.Bool("reset", false, "Drop and recreate the postgres tables")
	exportPath := flag.String("export", "", "Export the chromem collection to this file")
	importPath := flag.String("import", "", "Import the chromem collection from this file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	log.Debug().Str("store", cfg.Store.Driver).Str("llm", cfg.LLM.Model).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, *reset)
	if err != nil {
		log.Fatal().Err(err).Msg("Error starting up")
	}
	defer a.Close()

	files := flag.Args()
	if *filePath != "" {
		files = append([]string{*filePath}, files...)
	}

	switch {
	case *exportPath != "" || *importPath != "":
		err = a.transfer(*exportPath, *importPath)
	case *deleteID != "":
		err = a.documents.Delete(ctx, *deleteID)
		if err == nil {
			fmt.Printf("Deleted %s\n", *deleteID)
		}
	case *list:
		err = a.list(ctx, store.ListFilter{Status: models.DocumentStatus(*status), Page: *page, Limit: *limit})
	case len(files) > 0 && *query != "":
		log.Fatal().Msg("Please provide either documents using the -file flag or a query using the -query flag, but not both")
	case len(files) > 0:
		err = a.ingestFiles(ctx, files)
	case *query != "":
		err = a.ask(ctx, *query, splitIDs(*docs), *historyPath)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("Command failed")
	}
}

type app struct {
	store     store.Store
	index     store.ChunkIndex
	vectors   *chromemdb.VectorDBManager
	pool      *embedding.Pool
	queue     *ingest.Queue
	documents *ingest.Service
	rag       *rag.RAG

	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg *config.Config, reset bool) (*app, error) {
	st, err := openStore(ctx, cfg, reset)
	if err != nil {
		return nil, err
	}
	a := &app{store: st, index: st}

	if cfg.Store.Vectors == "chromem" {
		inMemory := cfg.Store.ChromemPath == ""
		a.vectors, err = chromemdb.NewVectorDBManager(cfg.Store.ChromemPath, cfg.Store.Collection, inMemory)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.index = a.vectors
		log.Info().Str("path", cfg.Store.ChromemPath).Int("chunks", a.vectors.Count()).Msg("Using chromem chunk index")
	}

	embedder := embedding.NewService(
		embedding.NewLoader(&cfg.EmbedLLM),
		embedding.WithBatchSize(cfg.EmbedLLM.BatchSize),
		embedding.WithDimension(cfg.EmbedLLM.Dimension),
		embedding.WithTimeout(cfg.EmbedLLM.Timeout),
	)
	a.pool = embedding.NewPool(embedder, cfg.EmbedLLM.Workers)

	model, err := llmservice.NewModel(&cfg.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	generator := llmservice.NewGenerator(model, cfg.LLM.Provider, cfg.LLM.Model, cfg.RAG.GenerationTimeout)
	retriever := rag.NewRetriever(a.pool, a.store, a.index, cfg.RAG.TopK, cfg.RAG.SimilarityThreshold, cfg.RAG.RetrievalTimeout)
	a.rag = rag.NewRAG(retriever, generator, cfg.RAG.HistoryTurns)

	extractor := parser.PDFExtractor{}
	processor := ingest.NewProcessor(a.store, a.index, extractor, parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap), embedder)
	a.queue = ingest.NewQueue(ctx, processor.Process, cfg.Ingest.Workers, cfg.Ingest.QueueSize)
	a.documents = ingest.NewService(a.store, a.index, extractor, a.queue, cfg.Ingest.MaxUploadMB)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, reset bool) (store.Store, error) {
	if cfg.Store.Driver == "sqlite" {
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := helper.CreateFolder(dir); err != nil {
				return nil, err
			}
		}
		return sqlitestore.Open(cfg.Store.SQLitePath)
	}

	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	dbInstance := db.NewDB(dbClient, cfg.Database.Debug)
	if reset {
		log.Warn().Msg("Dropping tables")
		if err := db.DropTables(ctx, dbInstance); err != nil {
			_ = dbInstance.Close()
			return nil, fmt.Errorf("failed to drop tables: %w", err)
		}
	}
	if err := db.InitDB(ctx, dbInstance, cfg.EmbedLLM.Dimension); err != nil {
		_ = dbInstance.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db.NewStore(dbInstance), nil
}

// Close drains the ingestion queue before releasing the stores.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		if a.pool != nil {
			a.pool.Close()
		}
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing store")
		}
	})
}

func (a *app) ingestFiles(ctx context.Context, files []string) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		wg.Add(1)
		doc, err := a.documents.Upload(ctx, filepath.Base(path), data, func(res ingest.Result) {
			defer wg.Done()
			if res.Err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			log.Info().Str("document_id", res.DocumentID).Int("chunks", res.ChunkCount).Msg("Ingested")
		})
		if err != nil {
			wg.Done()
			log.Error().Err(err).Str("file", path).Msg("Upload rejected")
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}
		fmt.Printf("%s\t%s\t%d pages\n", doc.ID, doc.Filename, doc.PageCount)
	}
	wg.Wait()
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(files))
	}
	return nil
}

func (a *app) ask(ctx context.Context, query string, documentIDs []string, historyPath string) error {
	history, err := loadHistory(historyPath)
	if err != nil {
		return err
	}
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	req := rag.ChatRequest{Query: query, DocumentIDs: documentIDs, History: history}
	return a.rag.Answer(ctx, req, streaming.NewWriter(out))
}

func (a *app) list(ctx context.Context, f store.ListFilter) error {
	docs, total, err := a.documents.List(ctx, f)
	if err != nil {
		return err
	}
	f = f.Normalize()
	helper.PrettyPrint(map[string]any{
		"documents": docs,
		"total":     total,
		"page":      f.Page,
		"limit":     f.Limit,
	})
	return nil
}

func (a *app) transfer(exportPath, importPath string) error {
	if a.vectors == nil {
		return errors.New("export and import need store.vectors set to chromem")
	}
	if importPath != "" {
		if err := a.vectors.Import(importPath, os.Getenv("CHROMEM_KEY")); err != nil {
			return err
		}
		log.Info().Int("chunks", a.vectors.Count()).Msg("Imported collection")
	}
	if exportPath != "" {
		return a.vectors.Export(exportPath, os.Getenv("CHROMEM_KEY"))
	}
	return nil
}

func loadHistory(path string) ([]models.ConversationTurn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	var turns []models.ConversationTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return turns, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
