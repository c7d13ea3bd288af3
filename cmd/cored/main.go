package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/directory"
	"skillforge.org/internal/grants"
	"skillforge.org/internal/obs"
	"skillforge.org/internal/relationship"
	"skillforge.org/internal/store/pg"
)

// core bundles the wired engines so a transport layer has one place to pick
// them up from.
type core struct {
	directory *directory.Directory
	engine    *relationship.Engine
	registry  *grants.Registry
	graph     *grants.Graph
}

func newCore(store *pg.Store) (*core, error) {
	dir, err := directory.New(store)
	if err != nil {
		return nil, err
	}
	recorder := activity.LogRecorder{}
	engine, err := relationship.NewEngine(dir, store, store, recorder)
	if err != nil {
		return nil, err
	}
	registry, err := grants.NewRegistry(store, dir)
	if err != nil {
		return nil, err
	}
	graph, err := grants.NewGraph(store, dir, store, recorder)
	if err != nil {
		return nil, err
	}
	return &core{directory: dir, engine: engine, registry: registry, graph: graph}, nil
}

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("SKILLFORGE_PG_DSN")
	if dsn == "" {
		log.Fatal("SKILLFORGE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	if _, err := newCore(store); err != nil {
		log.Fatalf("wire core: %v", err)
	}

	addr := os.Getenv("SKILLFORGE_OPS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.DB().PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting skillforge-cored %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
