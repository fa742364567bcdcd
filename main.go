package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"taskchat-client/chat"
	"taskchat-client/db"
	"taskchat-client/handlers"
	"taskchat-client/models"
	"taskchat-client/persistence"
	"taskchat-client/recorder"
	"taskchat-client/uploader"
	"taskchat-client/utils"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Loading configuration: %v", err)
	}

	if err := os.MkdirAll(config.Local.DataDir, 0755); err != nil {
		log.Fatalf("Creating data directory: %v", err)
	}

	snapshots, err := persistence.NewManager(filepath.Join(config.Local.DataDir, "snapshots.db"))
	if err != nil {
		log.Fatalf("Opening snapshot cache: %v", err)
	}
	defer snapshots.Close()

	archive, err := db.NewSQLiteManager(filepath.Join(config.Local.DataDir, "archive.db"))
	if err != nil {
		log.Fatalf("Opening message archive: %v", err)
	}
	defer archive.Close()

	if err := archive.InitTables(); err != nil {
		log.Fatalf("Initializing archive tables: %v", err)
	}
	if err := archive.ApplyMigrations(); err != nil {
		log.Fatalf("Migrating archive: %v", err)
	}

	rec := recorder.New(&recorder.FileDevice{
		Path:      config.Recorder.InputPath,
		ChunkSize: config.Recorder.ChunkSize,
	})

	socket := chat.NewSocket(config.Server.SocketURL, config.Server.AuthToken)
	rest := chat.NewRest(config.Server.BaseURL, config.Server.AuthToken)
	uploads := uploader.New(config.Upload, config.Server.AuthToken)

	engine := chat.NewEngine(socket, rest, uploads, rec, snapshots, archive)

	hub := handlers.NewHub()
	alerts := handlers.NewAlertService(hub)

	engine.OnEvent = func(kind string, payload interface{}) {
		hub.Broadcast(kind, payload)
		if kind == chat.EventMessageCreated {
			if msg, ok := payload.(models.Message); ok {
				go alerts.Evaluate(msg)
			}
		}
	}

	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		// Degraded start: the UI can trigger a reconnect once the
		// upstream is reachable again.
		log.Printf("Connecting to chat server: %v", err)
	}
	defer engine.Close()

	router := gin.Default()
	handlers.SetupAPIRoutes(router, engine, hub, alerts, archive)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Local.Port),
		Handler: router,
	}

	go func() {
		log.Printf("UI API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
}
