// Command avgateway is the CLI entry point: a cobra root command with a
// persistent --config flag bound to viper-backed configuration, a run
// subcommand, and a version subcommand.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternops/avgateway/internal/config"
	"github.com/lanternops/avgateway/internal/destination"
	"github.com/lanternops/avgateway/internal/logging"
	"github.com/lanternops/avgateway/internal/obsv"
	"github.com/lanternops/avgateway/internal/session"
	"github.com/lanternops/avgateway/internal/transport"
)

var version = "0.1.0"

var cfgFile string

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "avgateway",
	Short: "AV gateway server",
	Long:  "avgateway ingests a live audio/video stream over a WebRTC data channel and re-encodes it via an external encoder subprocess.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway server",
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("avgateway v%s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		out, err := cfg.DumpYAML()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./avgateway.yaml or /etc/avgateway/avgateway.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	format := cfg.LogFormat
	level := cfg.LogLevel
	if cfg.Debug {
		format = "text"
		level = "debug"
	}
	logging.Init(format, level, output)
	log = logging.L("main")
}

// runGateway wires the components into a running server: the session
// registry on top of the pion peer factory, an HTTP mux serving the
// signaling upgrade endpoint and a health check, and graceful shutdown
// on SIGINT/SIGTERM.
func runGateway() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)
	log.Info("starting avgateway", "version", version, "port", cfg.Port)

	peerFactory, err := transport.NewPeerFactory()
	if err != nil {
		log.Error("failed to construct peer transport factory", "error", err)
		os.Exit(1)
	}

	registry := session.NewRegistry(session.Config{
		AuthKey:                cfg.AuthKey,
		ICEServers:             cfg.ICEServers,
		MaxPacketSize:          cfg.MaxPacketSize,
		ChunkWaitTimeout:       cfg.ChunkWaitTimeout,
		ChunkWaitCheckInterval: cfg.ChunkWaitCheckInterval,
		EncoderBinaries: map[string]string{
			"ffmpeg":    cfg.FFmpegBinary,
			"gstreamer": cfg.GStreamerBinary,
		},
		ResolveSink: func(ctx context.Context, destType, key string) (io.WriteCloser, bool, error) {
			return destination.Resolve(ctx, cfg, destType, key)
		},
	}, peerFactory)

	signalingServer := transport.NewSignalingServer(registry.Accept)
	scrape := obsv.EnableSelfScrape()

	mux := http.NewServeMux()
	mux.Handle("/signal", signalingServer.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metricsz", func(w http.ResponseWriter, r *http.Request) {
		if err := scrape.WriteTo(r.Context(), w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down avgateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown did not complete cleanly", "error", err)
	}

	registry.CloseAll()
	log.Info("avgateway stopped")
}
