package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/praetorian-inc/ctrie/internal/config"
	"github.com/praetorian-inc/ctrie/pkg/datastore"
	"github.com/praetorian-inc/ctrie/pkg/enum"
	"github.com/praetorian-inc/ctrie/pkg/sarif"
	"github.com/praetorian-inc/ctrie/pkg/seen"
	"github.com/praetorian-inc/ctrie/pkg/store"
	"github.com/praetorian-inc/ctrie/pkg/types"
	"github.com/spf13/cobra"
)

var (
	scanSignaturesPath  string
	scanSignaturesSet   string
	scanInclude         string
	scanExclude         string
	scanOutputPath      string
	scanOutputFormat    string
	scanGit             bool
	scanHistory         bool
	scanMaxFileSize     int64
	scanIncludeHidden   bool
	scanSkipBinary      bool
	scanExtractArchives bool
	scanCaseInsensitive bool
	scanChunkSize       int
	scanIncremental     bool
	scanRedisAddr       string
	scanRedisDB         int
	scanBlobsDir        string
)

var scanCmd = &cobra.Command{
	Use:   "scan <target>...",
	Short: "Scan targets for byte signatures",
	Long: `Scan files, directories, git repositories, or object storage prefixes
(s3://bucket/prefix, azblob://container/prefix) for byte signatures.

A blob found under several targets is scanned once.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanSignaturesPath, "signatures", "", "Path to a signatures file or directory (default: builtin)")
	scanCmd.Flags().StringVar(&scanSignaturesSet, "set", "", "Only use signatures from this builtin set")
	scanCmd.Flags().StringVar(&scanInclude, "include", "", "Include signatures whose id matches a regex (comma-separated)")
	scanCmd.Flags().StringVar(&scanExclude, "exclude", "", "Exclude signatures whose id matches a regex (comma-separated)")
	scanCmd.Flags().StringVar(&scanOutputPath, "output", "ctrie.db", "Output store: SQLite path, postgres:// URL, or :memory:")
	scanCmd.Flags().StringVar(&scanOutputFormat, "format", "human", "Output format: human, json, sarif")
	scanCmd.Flags().BoolVar(&scanGit, "git", false, "Treat targets as git repositories")
	scanCmd.Flags().BoolVar(&scanHistory, "history", false, "With --git, scan every blob reachable from any ref")
	scanCmd.Flags().Int64Var(&scanMaxFileSize, "max-file-size", 10*1024*1024, "Maximum file size to scan (bytes)")
	scanCmd.Flags().BoolVar(&scanIncludeHidden, "include-hidden", false, "Include hidden files and directories")
	scanCmd.Flags().BoolVar(&scanSkipBinary, "skip-binary", false, "Skip files that look binary")
	scanCmd.Flags().BoolVar(&scanExtractArchives, "extract-archives", false, "Also scan members of zip, 7z, and pdf files")
	scanCmd.Flags().BoolVar(&scanCaseInsensitive, "case-insensitive", false, "Fold ASCII letters when matching")
	scanCmd.Flags().IntVar(&scanChunkSize, "chunk-size", 0, "Read size in bytes for chunked matching (0 = default)")
	scanCmd.Flags().BoolVar(&scanIncremental, "incremental", false, "Skip already-scanned blobs")
	scanCmd.Flags().StringVar(&scanRedisAddr, "redis-addr", "", "Redis address for the incremental index (default: the output store)")
	scanCmd.Flags().IntVar(&scanRedisDB, "redis-db", 0, "Redis database number")
	scanCmd.Flags().StringVar(&scanBlobsDir, "blobs-dir", "", "Archive every blob with a match under this directory")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyScanConfig(cmd, cfg)
	logger := newLogger()

	for _, target := range args {
		if enum.IsObjectURL(target) {
			continue
		}
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("target does not exist: %s", target)
		}
	}

	sc, err := buildScanner(signatureOptions{
		Path:          scanSignaturesPath,
		Include:       scanInclude,
		Exclude:       scanExclude,
		Set:           scanSignaturesSet,
		CaseSensitive: !scanCaseInsensitive,
	}, scanChunkSize, logger, nil)
	if err != nil {
		return err
	}

	s, err := store.New(store.Config{Path: scanOutputPath})
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()

	index, err := openIndex(ctx, s)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
	}

	enumerators := make([]enum.Enumerator, 0, len(args))
	for _, target := range args {
		e, err := createEnumerator(ctx, target, logger)
		if err != nil {
			return fmt.Errorf("creating enumerator for %s: %w", target, err)
		}
		enumerators = append(enumerators, e)
	}

	p := newPipeline(sc, s, index, strings.Join(args, ","), logger)
	if scanBlobsDir != "" {
		if p.blobs, err = datastore.Open(scanBlobsDir); err != nil {
			return err
		}
	}
	if err := enum.NewCombinedEnumerator(enumerators...).Enumerate(ctx, p.callback(ctx)); err != nil {
		return fmt.Errorf("scanning: %w", err)
	}
	if err := p.finish(); err != nil {
		return err
	}

	// Keep stdout machine-readable for json and sarif.
	summary := cmd.OutOrStdout()
	if scanOutputFormat == "json" || scanOutputFormat == "sarif" {
		summary = cmd.ErrOrStderr()
	}
	if scanIncremental {
		fmt.Fprintf(summary, "Scan complete: %d matches, %d findings (%d blobs skipped)\n", p.run.Matches, p.findings, p.run.Skipped)
	} else {
		fmt.Fprintf(summary, "Scan complete: %d matches, %d findings\n", p.run.Matches, p.findings)
	}
	fmt.Fprintf(summary, "Results stored in: %s\n", scanOutputPath)

	switch scanOutputFormat {
	case "json":
		matches, err := s.GetAllMatches()
		if err != nil {
			return fmt.Errorf("retrieving matches: %w", err)
		}
		return outputMatches(cmd, matches)
	case "sarif":
		matches, err := s.GetAllMatches()
		if err != nil {
			return fmt.Errorf("retrieving matches: %w", err)
		}
		return outputSARIF(cmd, s, sc.Table().Signatures(), matches)
	case "human":
		findings, err := s.GetFindings()
		if err != nil {
			return fmt.Errorf("retrieving findings: %w", err)
		}
		return outputFindings(cmd, findings)
	default:
		return fmt.Errorf("unknown output format: %s", scanOutputFormat)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// applyScanConfig copies config file values into flags the user did not
// set on the command line.
func applyScanConfig(cmd *cobra.Command, cfg *config.File) {
	flags := cmd.Flags()
	unset := func(name string) bool { return !flags.Changed(name) }

	if cfg.Scan.ChunkSize > 0 && unset("chunk-size") {
		scanChunkSize = cfg.Scan.ChunkSize
	}
	if cfg.Scan.MaxFileSize > 0 && unset("max-file-size") {
		scanMaxFileSize = cfg.Scan.MaxFileSize
	}
	if cfg.Scan.Signatures != "" && unset("signatures") {
		scanSignaturesPath = cfg.Scan.Signatures
	}
	if unset("include-hidden") {
		scanIncludeHidden = config.Bool(cfg.Scan.IncludeHidden, scanIncludeHidden)
	}
	if unset("case-insensitive") {
		scanCaseInsensitive = config.Bool(cfg.Scan.CaseInsensitive, scanCaseInsensitive)
	}
	if unset("skip-binary") {
		scanSkipBinary = config.Bool(cfg.Scan.SkipBinary, scanSkipBinary)
	}
	if unset("extract-archives") {
		scanExtractArchives = config.Bool(cfg.Scan.ExtractArchives, scanExtractArchives)
	}
	if cfg.Store.Path != "" && unset("output") {
		scanOutputPath = cfg.Store.Path
	}
	if cfg.Seen.RedisAddr != "" && unset("redis-addr") {
		scanRedisAddr = cfg.Seen.RedisAddr
	}
	if cfg.Seen.RedisDB > 0 && unset("redis-db") {
		scanRedisDB = cfg.Seen.RedisDB
	}
}

// openIndex returns the incremental index, or nil when --incremental is
// off.
func openIndex(ctx context.Context, s store.Store) (seen.Index, error) {
	if !scanIncremental {
		return nil, nil
	}
	if scanRedisAddr == "" {
		return seen.NewStoreIndex(s), nil
	}
	idx := seen.NewRedis(scanRedisAddr, os.Getenv("REDIS_PASSWORD"), scanRedisDB)
	if err := idx.Ping(ctx); err != nil {
		idx.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return idx, nil
}

func enumConfig(root string, logger *slog.Logger) enum.Config {
	return enum.Config{
		Root:            root,
		IncludeHidden:   scanIncludeHidden,
		MaxFileSize:     scanMaxFileSize,
		FollowSymlinks:  false,
		SkipBinary:      scanSkipBinary,
		ExtractArchives: scanExtractArchives,
		Logger:          logger,
	}
}

func createEnumerator(ctx context.Context, target string, logger *slog.Logger) (enum.Enumerator, error) {
	if enum.IsObjectURL(target) {
		return createObjectEnumerator(ctx, target, logger)
	}

	config := enumConfig(target, logger)
	if scanGit {
		e := enum.NewGitEnumerator(config)
		e.WalkAll = scanHistory
		return e, nil
	}
	return enum.NewFilesystemEnumerator(config), nil
}

func createObjectEnumerator(ctx context.Context, target string, logger *slog.Logger) (enum.Enumerator, error) {
	scheme, container, prefix, err := enum.ParseObjectURL(target)
	if err != nil {
		return nil, err
	}
	config := enumConfig("", logger)

	switch scheme {
	case "s3":
		e, err := enum.NewS3Enumerator(ctx, enum.S3Config{
			Bucket:   container,
			Prefix:   prefix,
			Endpoint: os.Getenv("AWS_ENDPOINT_URL_S3"),
			Config:   config,
		})
		if err != nil {
			return nil, err
		}
		if arn, err := e.Identity(ctx); err == nil {
			logger.Info("using AWS identity", "arn", arn)
		}
		return e, nil
	case "azblob":
		conn := os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
		if conn == "" {
			return nil, fmt.Errorf("AZURE_STORAGE_CONNECTION_STRING is required for %s", target)
		}
		return enum.NewAzureEnumerator(enum.AzureConfig{
			ConnectionString: conn,
			Container:        container,
			Prefix:           prefix,
			Config:           config,
		})
	default:
		return nil, fmt.Errorf("unsupported object scheme: %s", scheme)
	}
}

func outputMatches(cmd *cobra.Command, matches []*types.Match) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(matches)
}

func outputFindings(cmd *cobra.Command, findings []*types.Finding) error {
	out := cmd.OutOrStdout()
	if len(findings) == 0 {
		fmt.Fprintf(out, "\nNo findings.\n")
		return nil
	}

	fmt.Fprintf(out, "\nFindings:\n")
	for i, f := range findings {
		fmt.Fprintf(out, "%d. %s %q\n", i+1, f.SignatureID, f.Matched)
	}
	return nil
}

// outputSARIF writes matches as a SARIF 2.1.0 log.
func outputSARIF(cmd *cobra.Command, s store.Store, sigs []*types.Signature, matches []*types.Match) error {
	report := sarif.NewReport(version)
	for _, sig := range sigs {
		report.AddRule(sig)
	}

	paths := make(map[types.BlobID]string)
	for _, m := range matches {
		path, ok := paths[m.BlobID]
		if !ok {
			path = blobPath(s, m.BlobID)
			paths[m.BlobID] = path
		}
		report.AddResult(m, path)
	}

	if err := report.Write(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("writing SARIF output: %w", err)
	}
	return nil
}

// blobPath returns the first recorded path of a blob, or its hex id.
func blobPath(s store.Store, id types.BlobID) string {
	provs, err := s.GetProvenance(id)
	if err != nil {
		return id.Hex()
	}
	for _, p := range provs {
		if path := p.Path(); path != "" {
			return path
		}
	}
	return id.Hex()
}
