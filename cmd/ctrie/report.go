package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/praetorian-inc/ctrie/pkg/store"
	"github.com/praetorian-inc/ctrie/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	reportStore      string
	reportFormat     string
	reportColor      string
	reportSignatures string
	reportMaxMatches int
)

// styles holds the color formatters for human output.
type styles struct {
	findingHeading *color.Color
	id             *color.Color
	signatureName  *color.Color
	heading        *color.Color
	match          *color.Color
	metadata       *color.Color
}

// newStyles creates the formatters. enabled=false honors --color=never
// and NO_COLOR.
func newStyles(enabled bool) *styles {
	s := &styles{
		findingHeading: color.New(color.Bold, color.FgHiWhite),
		id:             color.New(color.FgHiGreen),
		signatureName:  color.New(color.Bold, color.FgHiBlue),
		heading:        color.New(color.Bold),
		match:          color.New(color.FgYellow),
		metadata:       color.New(color.FgHiBlue),
	}

	if !enabled {
		for _, c := range []*color.Color{s.findingHeading, s.id, s.signatureName, s.heading, s.match, s.metadata} {
			c.DisableColor()
		}
	}

	return s
}

// snippetParts holds a snippet split for colored output.
type snippetParts struct {
	prefix   string // "..." if truncated at start
	before   string
	matching string
	after    string
	suffix   string // "..." if truncated at end
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a report from stored scan results",
	Long:  "Read findings from a result store and print them",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportStore, "store", "ctrie.db", "Result store: SQLite path or postgres:// URL")
	reportCmd.Flags().StringVar(&reportFormat, "format", "human", "Output format: human, json, sarif")
	reportCmd.Flags().StringVar(&reportColor, "color", "auto", "Color output: auto, always, never")
	reportCmd.Flags().StringVar(&reportSignatures, "signatures", "", "Signatures file or directory for SARIF rule metadata (default: builtin)")
	reportCmd.Flags().IntVar(&reportMaxMatches, "max-matches", 3, "Matches shown per finding in human output (0 = all)")
}

func runReport(cmd *cobra.Command, args []string) error {
	storePath := reportStore
	if storePath == ":memory:" {
		return fmt.Errorf("cannot report from in-memory store")
	}
	if !strings.Contains(storePath, "://") {
		info, err := os.Stat(storePath)
		if err != nil {
			return fmt.Errorf("store not found: %s", storePath)
		}
		if info.IsDir() {
			storePath = filepath.Join(storePath, "ctrie.db")
		}
	}

	s, err := store.New(store.Config{Path: storePath})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	findings, err := s.GetFindings()
	if err != nil {
		return fmt.Errorf("retrieving findings: %w", err)
	}
	matches, err := s.GetAllMatches()
	if err != nil {
		return fmt.Errorf("retrieving matches: %w", err)
	}
	attachMatches(findings, matches)

	switch reportFormat {
	case "json":
		return writeJSON(cmd, findings)
	case "human":
		return outputReportHuman(cmd, s, findings)
	case "sarif":
		sigs, err := loadSignatures(signatureOptions{Path: reportSignatures})
		if err != nil {
			return fmt.Errorf("loading signatures: %w", err)
		}
		return outputSARIF(cmd, s, sigs, matches)
	default:
		return fmt.Errorf("unknown output format: %s", reportFormat)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// attachMatches fills each finding's Matches from the stored matches.
func attachMatches(findings []*types.Finding, matches []*types.Match) {
	byFinding := make(map[string][]*types.Match)
	for _, m := range matches {
		byFinding[m.FindingID] = append(byFinding[m.FindingID], m)
	}
	for _, f := range findings {
		f.Matches = byFinding[f.ID]
	}
}

// printable replaces bytes a terminal would interpret with '.'.
func printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c == '\t' || (c >= 0x20 && c <= 0x7e) {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// formatSnippetWithParts joins before/matching/after and truncates to
// maxLen, centering the window on the matched bytes.
func formatSnippetWithParts(before, matching, after []byte, maxLen int) snippetParts {
	full := printable(before) + printable(matching) + printable(after)

	if len(full) <= maxLen {
		return snippetParts{
			before:   printable(before),
			matching: printable(matching),
			after:    printable(after),
		}
	}

	matchStart := len(before)
	matchEnd := matchStart + len(matching)
	matchLen := len(matching)

	if matchLen >= maxLen {
		return snippetParts{
			prefix:   "...",
			matching: full[matchStart : matchStart+maxLen-6],
			suffix:   "...",
		}
	}

	// 6 bytes are reserved for "..." on each side.
	halfContext := (maxLen - matchLen - 6) / 2

	start := matchStart - halfContext
	end := matchEnd + halfContext
	if start < 0 {
		end -= start
		start = 0
	}
	if end > len(full) {
		start -= end - len(full)
		if start < 0 {
			start = 0
		}
		end = len(full)
	}

	parts := snippetParts{matching: full[matchStart:matchEnd]}
	if start > 0 {
		parts.prefix = "..."
	}
	if start < matchStart {
		parts.before = full[start:matchStart]
	}
	if matchEnd < end {
		parts.after = full[matchEnd:end]
	}
	if end < len(full) {
		parts.suffix = "..."
	}
	return parts
}

func colorEnabled() bool {
	switch reportColor {
	case "always":
		return true
	case "never":
		return false
	default:
		return term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
	}
}

func outputReportHuman(cmd *cobra.Command, s store.Store, findings []*types.Finding) error {
	out := cmd.OutOrStdout()
	color.NoColor = !colorEnabled()
	st := newStyles(!color.NoColor)

	total := len(findings)
	for i, f := range findings {
		fmt.Fprintf(out, "%s (%s %s)\n",
			st.findingHeading.Sprintf("Finding %d/%d", i+1, total),
			st.heading.Sprint("id"),
			st.id.Sprint(f.ID))

		name := f.SignatureID
		if len(f.Matches) > 0 && f.Matches[0].SignatureName != "" {
			name = f.Matches[0].SignatureName
		}
		fmt.Fprintf(out, "%s %s (%s)\n", st.heading.Sprint("Signature:"), st.signatureName.Sprint(name), f.SignatureID)
		fmt.Fprintf(out, "%s %s\n", st.heading.Sprint("Matched:"), st.match.Sprint(printable(f.Matched)))

		shown := f.Matches
		if reportMaxMatches > 0 && len(shown) > reportMaxMatches {
			fmt.Fprintf(out, "Showing %d/%d matches:\n", reportMaxMatches, len(shown))
			shown = shown[:reportMaxMatches]
		}

		for k, m := range shown {
			fmt.Fprintf(out, "\n    %s (%s %s)\n",
				st.heading.Sprintf("Match %d/%d", k+1, len(f.Matches)),
				st.heading.Sprint("id"),
				st.id.Sprint(m.StructuralID))

			if path := blobPath(s, m.BlobID); path != m.BlobID.Hex() {
				fmt.Fprintf(out, "    %s %s\n", st.heading.Sprint("File:"), st.metadata.Sprint(path))
			}
			fmt.Fprintf(out, "    %s %s\n", st.heading.Sprint("Blob:"), st.metadata.Sprint(m.BlobID.Hex()))
			fmt.Fprintf(out, "    %s %d-%d\n", st.heading.Sprint("Offsets:"), m.Location.Offset.Start, m.Location.Offset.End)
			if m.Location.Source.Start.Line > 0 {
				fmt.Fprintf(out, "    %s %d:%d-%d:%d\n",
					st.heading.Sprint("Lines:"),
					m.Location.Source.Start.Line, m.Location.Source.Start.Column,
					m.Location.Source.End.Line, m.Location.Source.End.Column)
			}

			parts := formatSnippetWithParts(m.Snippet.Before, m.Snippet.Matching, m.Snippet.After, 500)
			if parts.matching != "" {
				fmt.Fprintf(out, "\n        %s%s%s%s%s\n",
					parts.prefix, parts.before, st.match.Sprint(parts.matching), parts.after, parts.suffix)
			}
		}

		fmt.Fprintf(out, "\n\n")
	}

	runs, err := s.GetScanRuns()
	if err != nil {
		return fmt.Errorf("retrieving scan runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	fmt.Fprintf(out, "%s\n", st.heading.Sprint("Scan runs:"))
	for _, r := range runs {
		fmt.Fprintf(out, "  %s %s: %d blobs, %d skipped, %d matches in %s\n",
			st.id.Sprint(r.ID), r.Target, r.Blobs, r.Skipped, r.Matches, r.Duration())
	}
	return nil
}
