package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/askflow/config"
	"github.com/BaSui01/askflow/internal/database"
	"github.com/BaSui01/askflow/internal/turnlog"
	"github.com/BaSui01/askflow/llm/embedding"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/rag/loader"
)

// upsertBatch 每批写入 Qdrant 的块数
const upsertBatch = 64

// =============================================================================
// 📚 corpus 命令
// =============================================================================

// runCorpus 处理 corpus 子命令
func runCorpus(args []string) error {
	if len(args) < 1 || args[0] != "load" {
		return fmt.Errorf("usage: askflow corpus load [--config <path>] [--file <path>]")
	}

	fs := flag.NewFlagSet("corpus load", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "Snapshot to load")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	loaderCfg := config.NewLoader()
	if *configPath != "" {
		loaderCfg = loaderCfg.WithConfigPath(*configPath)
	}
	cfg, err := loaderCfg.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := *file
	if path == "" {
		path = cfg.Retrieval.CorpusPath
	}
	if path == "" {
		return fmt.Errorf("no snapshot given: pass --file or set retrieval.corpus_path")
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return loadCorpus(ctx, cfg, path, logger)
}

// loadCorpus 读取快照, 补齐稠密向量并分批写入 Qdrant.
func loadCorpus(ctx context.Context, cfg *config.Config, path string, logger *zap.Logger) error {
	embedder := embedding.NewOpenAIProvider(cfg.EmbeddingProvider())
	chunks, err := loader.NewSnapshotLoader(embedder, logger).Load(ctx, path)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		logger.Warn("snapshot is empty", zap.String("path", path))
		return nil
	}

	dim := cfg.Embedding.Dimensions
	if dim <= 0 {
		dim = len(chunks[0].Dense)
	}
	store := rag.NewQdrantChunkStore(cfg.VectorStore(), logger)
	if err := store.EnsureCollection(ctx, dim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	for start := 0; start < len(chunks); start += upsertBatch {
		end := min(start+upsertBatch, len(chunks))
		if err := store.Upsert(ctx, chunks[start:end]); err != nil {
			return fmt.Errorf("upsert chunks %d-%d: %w", start, end, err)
		}
	}

	logger.Info("corpus loaded into qdrant",
		zap.String("collection", cfg.Qdrant.Collection),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", dim))
	fmt.Fprintf(os.Stdout, "loaded %d chunks into %s\n", len(chunks), cfg.Qdrant.Collection)
	return nil
}

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

// runMigrate 创建或更新轮次审计日志表
func runMigrate(args []string) error {
	cfg, _, err := loadConfig("migrate", args)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "" {
		return fmt.Errorf("database.driver is not configured")
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN(), logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := turnlog.NewRecorder(db, nil, logger).Migrate(); err != nil {
		return fmt.Errorf("migrate turn log: %w", err)
	}
	fmt.Println("turn log table is up to date")
	return nil
}
