package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"

	"github.com/facegate/rollcall/internal/attendance"
	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/store"
	"github.com/facegate/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Rollcall web server.
The server exposes enrollment, recognition and attendance reporting
endpoints under /api/v1. Face detection runs in the external detector
service configured via DETECTOR_URL.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening embedding store: %w", err)
	}
	fmt.Printf("Loaded %d embeddings for %d identities\n", st.CountEmbeddings(), len(st.Names()))

	st.EnableIndex()
	fmt.Printf("Neighbor index built with %d samples\n", st.IndexCount())

	ledger, err := attendance.NewLedger(filepath.Join(cfg.Storage.DataDir, "attendance.csv"))
	if err != nil {
		return fmt.Errorf("opening attendance ledger: %w", err)
	}

	det := detector.New(cfg.Detector.URL, cfg.Detector.Dim)
	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, st, det, ledger, port, host)

	// Yesterday's presence sets only waste memory once the day rolls over.
	scheduler := gocron.NewScheduler(time.Local)
	if _, err := scheduler.Every(1).Day().At("00:05").Do(func() {
		today := time.Now().Format("2006-01-02")
		if dropped := ledger.PrunePresenceBefore(today); dropped > 0 {
			fmt.Printf("Pruned presence index for %d past days\n", dropped)
		}
	}); err != nil {
		return fmt.Errorf("scheduling presence prune: %w", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if err := st.Save(); err != nil {
			fmt.Printf("Error saving embedding store: %v\n", err)
		} else {
			fmt.Println("Embedding store saved")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Rollcall on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
