package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praetorian-inc/ctrie/pkg/metrics"
	"github.com/praetorian-inc/ctrie/pkg/scanner"
	"github.com/praetorian-inc/ctrie/pkg/serve"
	"github.com/spf13/cobra"
)

var (
	serveSignaturesPath  string
	serveCaseInsensitive bool
	serveHTTPAddr        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a streaming or HTTP scan server",
	Long: `Run ctrie as a long-lived server. The tries are built once at startup.

By default requests arrive on stdin and responses leave on stdout as
NDJSON, until stdin closes or SIGTERM is received. With --http the same
operations are served over HTTP, together with trie introspection and
Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSignaturesPath, "signatures", "", "Path to a signatures file or directory (default: builtin)")
	serveCmd.Flags().BoolVar(&serveCaseInsensitive, "case-insensitive", false, "Fold ASCII letters when matching")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "Serve HTTP on this address instead of stdio (e.g. :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Serve.HTTPAddr != "" && !cmd.Flags().Changed("http") {
		serveHTTPAddr = cfg.Serve.HTTPAddr
	}

	logger := newLogger()
	m := metrics.New()

	sc, err := buildScanner(signatureOptions{
		Path:          serveSignaturesPath,
		CaseSensitive: !serveCaseInsensitive,
	}, 0, logger, m)
	if err != nil {
		return err
	}
	core, err := scanner.NewCoreWithScanner(sc, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if serveHTTPAddr == "" {
		return serve.NewServer(core, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
	}

	srv := &http.Server{
		Addr:              serveHTTPAddr,
		Handler:           serve.NewHandler(core, m, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", serveHTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
