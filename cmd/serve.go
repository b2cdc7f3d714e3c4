package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance web server.
The API enrolls people, recognizes single frames and runs live attendance
sessions fed by camera clients. Prometheus metrics are served on /metrics.`,
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
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	fmt.Printf("Opening %s store...\n", cfg.Store.Backend)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	met.SetStoreRecords(store.Count())
	fmt.Printf("Loaded %d samples of %d identities\n", store.Count(), len(store.Identities()))

	m, err := newMatcher(&cfg.Match)
	if err != nil {
		return err
	}
	fmt.Printf("Matching with %s index, threshold %.2f\n", cfg.Match.Index, m.Threshold())

	sink, err := attendance.Open(ctx, &cfg.Attendance)
	if err != nil {
		return fmt.Errorf("opening attendance sink: %w", err)
	}
	defer sink.Close()
	fmt.Printf("Recording attendance to %s\n", cfg.Attendance.Sink)

	announcer, err := newAnnouncer(&cfg.Speech)
	if err != nil {
		return err
	}

	emb := embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.MaxImageSize)
	pipeline := recognition.NewPipeline(store, m, emb, met)
	sessions := recognition.NewManager(sessionOptions(cfg, sink, announcer, met))

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, web.Services{
		Store:     store,
		Embedder:  emb,
		Pipeline:  pipeline,
		Sessions:  sessions,
		Sink:      sink,
		Announcer: announcer,
		Metrics:   met,
		Gatherer:  registry,
	}, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Session.StopTimeout+30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	// Sessions and in-flight requests still use the sink and store.
	<-shutdownDone
	return nil
}
