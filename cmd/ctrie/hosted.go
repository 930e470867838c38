package main

import (
	"context"
	"fmt"

	"github.com/praetorian-inc/ctrie/pkg/enum"
	"github.com/praetorian-inc/ctrie/pkg/store"
	"github.com/spf13/cobra"
)

// defaultHostedMaxFileSize bounds files fetched from hosted sources.
const defaultHostedMaxFileSize = 10 * 1024 * 1024

// hostedScan runs the builtin signatures over one hosted-source
// enumerator and prints the summary in the requested format.
func hostedScan(cmd *cobra.Command, e enum.Enumerator, target, outputPath, format string) error {
	logger := newLogger()

	sc, err := buildScanner(signatureOptions{CaseSensitive: true}, 0, logger, nil)
	if err != nil {
		return err
	}

	s, err := store.New(store.Config{Path: outputPath})
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	p := newPipeline(sc, s, nil, target, logger)
	if err := e.Enumerate(ctx, enum.Dedup(p.callback(ctx))); err != nil {
		return fmt.Errorf("scanning %s: %w", target, err)
	}
	if err := p.finish(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scan complete: %d matches, %d findings\n", p.run.Matches, p.findings)
	fmt.Fprintf(cmd.OutOrStdout(), "Results stored in: %s\n", outputPath)

	if format == "json" {
		matches, err := s.GetAllMatches()
		if err != nil {
			return fmt.Errorf("retrieving matches: %w", err)
		}
		return outputMatches(cmd, matches)
	}

	findings, err := s.GetFindings()
	if err != nil {
		return fmt.Errorf("retrieving findings: %w", err)
	}
	return outputFindings(cmd, findings)
}
