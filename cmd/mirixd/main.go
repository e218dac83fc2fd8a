package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"mirix/internal/config"
	"mirix/internal/coordinator"
	"mirix/internal/embedding"
	"mirix/internal/objectstore"
	"mirix/internal/observability"
	"mirix/internal/persistence/databases"
	"mirix/internal/transcriber"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load(os.Getenv("MIRIX_CONFIG_PATH"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	store, err := databases.NewStore(ctx, cfg.Vector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init store")
	}

	var blobs objectstore.BlobStore
	if cfg.S3.Bucket != "" {
		s3store, err := objectstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 blob store")
		}
		blobs = objectstore.NewAdapter(s3store, cfg.S3.Bucket)
	} else {
		blobs = objectstore.NewAdapter(objectstore.NewMemoryStore(), "local")
	}

	emb := embedding.NewHTTPProvider(cfg.Embedding)

	coord, err := coordinator.New(cfg, store, blobs, emb, transcriber.NoOp{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init coordinator")
	}

	go coord.ReflexionSchedule(ctx)
	go clearScreenshotsLoop(ctx, coord)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report := coord.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})
	mux.HandleFunc("/messages", handleSendMessage(coord))
	mux.HandleFunc("/ask", handleAsk(coord))

	srv := &http.Server{Addr: ":8085", Handler: mux}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("mirixd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	coord.StopReflexionSchedule()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// clearScreenshotsLoop periodically enforces MaximumImagesInCloud,
// independent of the reflexion schedule since it's keyed off upload
// volume, not time (spec §4.6).
func clearScreenshotsLoop(ctx context.Context, coord *coordinator.Coordinator) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := coord.ClearOldScreenshots(ctx); err != nil {
				log.Warn().Err(err).Msg("mirixd: clear old screenshots failed")
			}
		}
	}
}

func handleSendMessage(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ImagePaths []string `json:"image_paths"`
			Text       string   `json:"text"`
			Memorizing bool     `json:"memorizing"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		obs := coordinator.Observation{ImagePaths: req.ImagePaths, Text: req.Text}
		reply, err := coord.SendMessage(r.Context(), obs, req.Memorizing)
		if err != nil {
			log.Error().Err(err).Msg("send message failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}
}

func handleAsk(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		reply, err := coord.Ask(r.Context(), req.Query)
		if err != nil {
			log.Error().Err(err).Msg("ask failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}
}
