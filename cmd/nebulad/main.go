package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nebula-tools/nebulactl/internal/api"
	"github.com/nebula-tools/nebulactl/internal/audit"
	"github.com/nebula-tools/nebulactl/internal/cloud"
	"github.com/nebula-tools/nebulactl/internal/config"
	"github.com/nebula-tools/nebulactl/internal/mapping"
	"github.com/nebula-tools/nebulactl/internal/syncer"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("nebulad starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := config.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	// Cloud directory. The daemon still serves syncs with explicit IPs
	// when gcloud is not installed.
	dir, err := cloud.NewClient()
	if err != nil {
		log.Printf("Cloud directory unavailable: %v", err)
		dir = nil
	}

	store := mapping.NewStore(config.MappingsPath())
	sy := syncer.New(store, cfg.SSH.ConfigPath, cfg.SSH.KeyDir, cfg.SSH.User)

	auditLog, err := audit.Open(config.AuditPath())
	if err != nil {
		log.Printf("Audit trail unavailable: %v", err)
		auditLog = nil
	}
	defer auditLog.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic resync of every stored mapping.
	var watcher *syncer.Watcher
	if dir != nil && cfg.Sync.IntervalSeconds > 0 {
		interval := time.Duration(cfg.Sync.IntervalSeconds) * time.Second
		watcher = syncer.NewWatcher(sy, store, dir, interval)
		watcher.Start(ctx)
		log.Printf("Resync watcher running every %s", interval)
	}

	server := api.NewServer(store, sy, dir, cfg.SSH.ConfigPath, cfg.Tools.Dir, auditLog)

	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.API.Port)
		if err := api.ListenAndServe(addr, server); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	log.Println("Shutting down...")
	if watcher != nil {
		watcher.Stop()
	}
	cancel()
}
