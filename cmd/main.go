package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vitrine/internal/cart"
	"vitrine/internal/catalog"
	"vitrine/internal/cep"
	"vitrine/internal/config"
	httpapi "vitrine/internal/http"
	"vitrine/internal/order"
	"vitrine/internal/storage"
	"vitrine/internal/stores"

	_ "vitrine/docs"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	kv, err := newStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	catalogCache := catalog.NewCache(catalog.FileSource{Path: cfg.CatalogPath}, kv)
	if err := catalogCache.Load(ctx); err != nil {
		log.Printf("catalog load: %v", err)
	}

	cartStore := cart.NewStore(ctx, catalogCache, kv)
	orderStore := order.NewStore(ctx, catalogCache, cartStore, kv)

	locator := stores.NewLocator(stores.FileSource{Path: cfg.StoresPath})
	if err := locator.Load(ctx); err != nil {
		log.Printf("stores load: %v", err)
	}

	cepClient := cep.NewClient(cfg.ViaCEPURL)

	srv := httpapi.NewServer(catalogCache, cartStore, orderStore, locator, cepClient)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func newStorage(ctx context.Context, cfg config.Config) (storage.KV, error) {
	switch cfg.Storage {
	case "memory":
		return storage.NewMemory(), nil
	case "file":
		return storage.NewFile(cfg.DataDir)
	case "postgres":
		return storage.NewPostgres(ctx, cfg.DatabaseURL)
	case "redis":
		return storage.NewRedis(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
