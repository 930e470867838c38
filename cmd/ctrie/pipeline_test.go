package main

import (
	"context"
	"sync"
	"testing"

	"github.com/praetorian-inc/ctrie/internal/logging"
	"github.com/praetorian-inc/ctrie/pkg/seen"
	"github.com/praetorian-inc/ctrie/pkg/store"
	"github.com/praetorian-inc/ctrie/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, index bool) (*pipeline, store.Store) {
	t.Helper()
	logger := logging.NewNop()
	sc, err := buildScanner(signatureOptions{CaseSensitive: true}, 0, logger, nil)
	require.NoError(t, err)
	s, err := store.New(store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var idx seen.Index
	if index {
		idx = seen.NewStoreIndex(s)
	}
	return newPipeline(sc, s, idx, "test", logger), s
}

func TestPipelineFindingsSpanBlobs(t *testing.T) {
	// Arrange: two different blobs holding the same token prefix.
	p, s := newTestPipeline(t, false)
	cb := p.callback(context.Background())
	a := []byte("first AKIA1111")
	b := []byte("second AKIA2222")

	// Act
	require.NoError(t, cb(a, types.ComputeBlobID(a), types.FileProvenance{FilePath: "a.txt"}))
	require.NoError(t, cb(b, types.ComputeBlobID(b), types.FileProvenance{FilePath: "b.txt"}))
	require.NoError(t, p.finish())

	// Assert: two matches, one finding, one stored run.
	assert.Equal(t, 2, p.run.Blobs)
	assert.Equal(t, 2, p.run.Matches)
	assert.Equal(t, 1, p.findings)

	findings, err := s.GetFindings()
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "token.aws-access-key", findings[0].SignatureID)

	provs, err := s.GetProvenance(types.ComputeBlobID(a))
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.Equal(t, "a.txt", provs[0].Path())

	runs, err := s.GetScanRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].FinishedAt.IsZero())
}

func TestPipelineSkipsSeenBlobs(t *testing.T) {
	p, _ := newTestPipeline(t, true)
	cb := p.callback(context.Background())
	content := []byte("xoxb-token")
	id := types.ComputeBlobID(content)

	require.NoError(t, cb(content, id, types.FileProvenance{FilePath: "one"}))
	require.NoError(t, cb(content, id, types.FileProvenance{FilePath: "two"}))

	assert.Equal(t, 1, p.run.Blobs)
	assert.Equal(t, 1, p.run.Skipped)
	assert.Equal(t, 1, p.run.Matches)
}

func TestPipelineConcurrentCallbacks(t *testing.T) {
	p, s := newTestPipeline(t, false)
	cb := p.callback(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := []byte{'g', 'h', 'p', '_', byte('a' + i)}
			assert.NoError(t, cb(content, types.ComputeBlobID(content), types.FileProvenance{FilePath: "f"}))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, p.run.Blobs)
	assert.Equal(t, 16, p.run.Matches)
	matches, err := s.GetAllMatches()
	require.NoError(t, err)
	assert.Len(t, matches, 16)
}

func TestLoadSignatures(t *testing.T) {
	all, err := loadSignatures(signatureOptions{})
	require.NoError(t, err)

	magic, err := loadSignatures(signatureOptions{Set: "magic"})
	require.NoError(t, err)
	assert.Less(t, len(magic), len(all))
	for _, s := range magic {
		assert.True(t, s.Anchored, s.ID)
	}

	_, err = loadSignatures(signatureOptions{Include: `^does-not-exist$`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signatures selected")
}
