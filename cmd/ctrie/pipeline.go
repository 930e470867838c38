package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/praetorian-inc/ctrie/pkg/datastore"
	"github.com/praetorian-inc/ctrie/pkg/enum"
	"github.com/praetorian-inc/ctrie/pkg/metrics"
	"github.com/praetorian-inc/ctrie/pkg/scanner"
	"github.com/praetorian-inc/ctrie/pkg/seen"
	"github.com/praetorian-inc/ctrie/pkg/signature"
	"github.com/praetorian-inc/ctrie/pkg/store"
	"github.com/praetorian-inc/ctrie/pkg/types"
)

// signatureOptions selects and filters the signature table.
type signatureOptions struct {
	Path          string // file or directory; empty for the builtin table
	Include       string // comma-separated id regexes
	Exclude       string
	Set           string // builtin set id
	CaseSensitive bool
}

func loadSignatures(opts signatureOptions) ([]*types.Signature, error) {
	loader := signature.NewLoader()

	var sigs []*types.Signature
	var err error
	if opts.Path != "" {
		sigs, err = loader.LoadPath(opts.Path)
	} else {
		sigs, err = scanner.BuiltinSignatures()
	}
	if err != nil {
		return nil, err
	}

	if opts.Set != "" {
		sets, err := loader.LoadBuiltinSets()
		if err != nil {
			return nil, fmt.Errorf("loading sets: %w", err)
		}
		var found *types.SignatureSet
		for _, s := range sets {
			if s.ID == opts.Set {
				found = s
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("unknown signature set: %s", opts.Set)
		}
		sigs = signature.FilterBySet(sigs, found)
	}

	if opts.Include != "" || opts.Exclude != "" {
		sigs, err = signature.Filter(sigs, signature.FilterConfig{
			Include: signature.ParsePatterns(opts.Include),
			Exclude: signature.ParsePatterns(opts.Exclude),
		})
		if err != nil {
			return nil, fmt.Errorf("filtering signatures: %w", err)
		}
	}

	if len(sigs) == 0 {
		return nil, fmt.Errorf("no signatures selected")
	}
	return sigs, nil
}

func buildScanner(opts signatureOptions, chunkSize int, logger *slog.Logger, m *metrics.Metrics) (*scanner.Scanner, error) {
	sigs, err := loadSignatures(opts)
	if err != nil {
		return nil, fmt.Errorf("loading signatures: %w", err)
	}
	table, err := signature.NewTable(sigs, opts.CaseSensitive)
	if err != nil {
		return nil, fmt.Errorf("building signature table: %w", err)
	}
	sc, err := scanner.New(scanner.Config{
		Table:     table,
		ChunkSize: chunkSize,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating scanner: %w", err)
	}
	logger.Debug("scanner ready", "signatures", table.Len())
	return sc, nil
}

// pipeline records every blob an enumerator yields. The callback may run
// on several goroutines at once; store writes and counters are
// serialized.
type pipeline struct {
	scanner *scanner.Scanner
	store   store.Store
	index   seen.Index           // nil scans every blob
	blobs   *datastore.BlobStore // nil archives nothing
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	run      *types.ScanRun
	findings int
}

func newPipeline(sc *scanner.Scanner, st store.Store, index seen.Index, target string, logger *slog.Logger) *pipeline {
	return &pipeline{
		scanner: sc,
		store:   st,
		index:   index,
		logger:  logger,
		run:     types.NewScanRun(target, sc.Table().Len()),
	}
}

func (p *pipeline) callback(ctx context.Context) enum.Callback {
	return func(content []byte, blobID types.BlobID, prov types.Provenance) error {
		if p.index != nil {
			done, err := p.index.Seen(ctx, blobID)
			if err != nil {
				return fmt.Errorf("checking blob: %w", err)
			}
			if done {
				p.mu.Lock()
				p.run.Skipped++
				p.mu.Unlock()
				p.metrics.ObserveSkip()
				return nil
			}
		}

		matches, err := p.scanner.Scan(content, blobID)
		if err != nil {
			return fmt.Errorf("matching content: %w", err)
		}

		if err := p.record(blobID, int64(len(content)), prov, matches); err != nil {
			return err
		}

		if p.blobs != nil && len(matches) > 0 {
			if _, err := p.blobs.Store(content); err != nil {
				return fmt.Errorf("archiving blob: %w", err)
			}
		}

		if p.index != nil {
			if err := p.index.Mark(ctx, blobID, int64(len(content))); err != nil {
				return fmt.Errorf("marking blob: %w", err)
			}
		}
		return nil
	}
}

func (p *pipeline) record(blobID types.BlobID, size int64, prov types.Provenance, matches []*types.Match) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.AddBlob(blobID, size); err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	if err := p.store.AddProvenance(blobID, prov); err != nil {
		return fmt.Errorf("storing provenance: %w", err)
	}

	for _, m := range matches {
		if err := p.store.AddMatch(m); err != nil {
			return fmt.Errorf("storing match: %w", err)
		}
	}

	for _, f := range scanner.GroupFindings(matches) {
		exists, err := p.store.FindingExists(f.ID)
		if err != nil {
			return fmt.Errorf("checking finding: %w", err)
		}
		if exists {
			continue
		}
		if err := p.store.AddFinding(f); err != nil {
			return fmt.Errorf("storing finding: %w", err)
		}
		p.findings++
	}

	p.run.Blobs++
	p.run.Matches += len(matches)
	p.logger.Debug("blob scanned", "blob", blobID.Hex(), "path", prov.Path(), "matches", len(matches))
	return nil
}

// finish closes the scan run and stores it.
func (p *pipeline) finish() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.run.Finish()
	if err := p.store.AddScanRun(p.run); err != nil {
		return fmt.Errorf("storing scan run: %w", err)
	}
	p.logger.Info("scan finished",
		"run", p.run.ID,
		"blobs", p.run.Blobs,
		"skipped", p.run.Skipped,
		"matches", p.run.Matches,
		"duration", p.run.Duration())
	return nil
}
