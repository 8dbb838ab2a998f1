// Package main provides the hiddb CLI entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/hiddb/internal/config"
	"github.com/orneryd/hiddb/internal/hiddb"
	"github.com/orneryd/hiddb/internal/httpapi"
	"github.com/orneryd/hiddb/internal/metrics"
	"github.com/orneryd/hiddb/internal/store"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hiddb",
		Short: "hiddb - persistent HNSW vector database",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hiddb v%s\n", version)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hiddb server",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("opening store at %s", cfg.StorePath)
	s, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	db, err := hiddb.Open(s, cfg.HNSWDefaultK, cfg.HNSWDefaultM)
	if err != nil {
		return fmt.Errorf("rehydrating index-store: %w", err)
	}

	reg := metrics.New(metrics.Labels{
		InstanceID:     cfg.InstanceID,
		IndexID:        cfg.IndexID,
		OrganizationID: cfg.OrganizationID,
	})

	httpServer := httpapi.New(db, cfg.ListenAddr, reg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	storageTicker := time.NewTicker(15 * time.Second)
	defer storageTicker.Stop()
	stopCollect := make(chan struct{})
	go func() {
		for {
			select {
			case <-storageTicker.C:
				reg.CollectStorage(s)
			case <-stopCollect:
				return
			}
		}
	}()

	log.Printf("hiddb listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		close(stopCollect)
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-sigCh:
		log.Println("shutting down")
		close(stopCollect)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("stopping server: %w", err)
		}
		log.Println("server stopped gracefully")
	}
	return nil
}
