package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/api"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/codegen"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/config"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/coordinator"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/journal"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/store"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/telemetry"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/watcher"
)

func main() {
	log.Println("🚀 Starting Visual Sketch Sync server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Tracing first, so everything after it is traced.
	jaegerShutdown, err := telemetry.InitJaeger("vss-server", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Durable state: document snapshots and the change journal.
	st, err := store.New(cfg.SnapshotDir)
	if err != nil {
		log.Fatalf("❌ Failed to open design-data store: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
		log.Fatalf("❌ Failed to create journal directory: %v", err)
	}
	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Fatalf("❌ Failed to open change journal: %v", err)
	}

	// File watcher over the generated source files.
	watch, err := watcher.New(cfg.DebounceWindow)
	if err != nil {
		log.Fatalf("❌ Failed to start file watcher: %v", err)
	}

	gen := codegen.New()

	// The coordinator ties the three representations together.
	coord := coordinator.New(st, gen, watch, jnl, coordinator.Options{
		WorkspaceDir: cfg.WorkspaceDir,
		QueueSize:    cfg.QueueSize,
		BacklogSize:  cfg.BacklogSize,
		GracePeriod:  cfg.GracePeriod,
	})
	coord.Start()

	handler := api.NewHandler(st, coord, jnl)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   POST   /api/documents                    - Create document")
		log.Printf("   GET    /api/documents                    - List documents")
		log.Printf("   GET    /api/documents/:id                - Get document")
		log.Printf("   DELETE /api/documents/:id                - Delete document")
		log.Printf("   POST   /api/documents/:id/changes        - Submit change")
		log.Printf("   GET    /api/documents/:id/history        - Change history")
		log.Printf("   GET    /api/documents/:id/export/pdf     - Export PDF")
		log.Printf("   WS     /ws/documents/:id?participant=... - Live session")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Stop accepting traffic first, then drain sync loops, then release the
	// watcher and the journal they feed.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	coord.Shutdown()

	if err := watch.Close(); err != nil {
		log.Printf("⚠️  Failed to close watcher: %v", err)
	}
	if err := jnl.Close(); err != nil {
		log.Printf("⚠️  Failed to close journal: %v", err)
	}

	log.Println("✓ Server shutdown complete")
}
