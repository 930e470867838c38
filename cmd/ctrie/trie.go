package main

import (
	"fmt"

	"github.com/praetorian-inc/ctrie/pkg/ctrie"
	"github.com/praetorian-inc/ctrie/pkg/scanner"
	"github.com/praetorian-inc/ctrie/pkg/signature"
	"github.com/praetorian-inc/ctrie/pkg/types"
	"github.com/spf13/cobra"
)

var (
	trieSignaturesPath  string
	trieSet             string
	trieKind            string
	trieCaseInsensitive bool
	trieEncoding        string
)

var trieCmd = &cobra.Command{
	Use:   "trie",
	Short: "Inspect the compiled signature tries",
	Long: `Build the tries for a signature table and inspect them.

Anchored signatures compile into one trie matched at offset 0; the rest
compile into a stream trie matched at every offset.`,
}

var trieDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every state and transition",
	RunE:  runTrieDump,
}

var trieStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print memory and capacity counters as JSON",
	RunE:  runTrieStats,
}

var trieMatchCmd = &cobra.Command{
	Use:   "match <input>",
	Short: "Run one anchored transition over input",
	Long: `Feed input to the trie from the root state and report the verdict.

Text input accepts \xHH escapes; use --encoding hex for hex input.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrieMatch,
}

func init() {
	for _, c := range []*cobra.Command{trieDumpCmd, trieStatsCmd, trieMatchCmd} {
		c.Flags().StringVar(&trieSignaturesPath, "signatures", "", "Path to a signatures file or directory (default: builtin)")
		c.Flags().StringVar(&trieSet, "set", "", "Only use signatures from this builtin set")
		c.Flags().BoolVar(&trieCaseInsensitive, "case-insensitive", false, "Fold ASCII letters when matching")
		trieCmd.AddCommand(c)
	}
	trieDumpCmd.Flags().StringVar(&trieKind, "kind", "stream", "Trie to use: anchored, stream")
	trieMatchCmd.Flags().StringVar(&trieKind, "kind", "stream", "Trie to use: anchored, stream")
	trieMatchCmd.Flags().StringVar(&trieEncoding, "encoding", "text", "Input encoding: text, hex")
}

func runTrieDump(cmd *cobra.Command, args []string) error {
	t, err := selectTrie()
	if err != nil {
		return err
	}
	return t.Dump(cmd.OutOrStdout())
}

// trieStats is the JSON shape of `trie stats`; a kind without
// signatures is null.
type trieStats struct {
	Signatures int          `json:"signatures"`
	Anchored   *ctrie.Stats `json:"anchored"`
	Stream     *ctrie.Stats `json:"stream"`
}

func runTrieStats(cmd *cobra.Command, args []string) error {
	sc, err := trieScanner()
	if err != nil {
		return err
	}

	out := trieStats{Signatures: sc.Table().Len()}
	if t := sc.AnchoredTrie(); t != nil {
		st := t.Stats()
		out.Anchored = &st
	}
	if t := sc.StreamTrie(); t != nil {
		st := t.Stats()
		out.Stream = &st
	}
	return writeJSON(cmd, out)
}

func runTrieMatch(cmd *cobra.Command, args []string) error {
	sc, err := trieScanner()
	if err != nil {
		return err
	}
	t, err := trieOf(sc, trieKind)
	if err != nil {
		return err
	}

	input, err := signature.Decode(args[0], types.PatternEncoding(trieEncoding))
	if err != nil {
		return fmt.Errorf("decoding input: %w", err)
	}

	ctx := ctrie.NewContext()
	res, n := t.Transition(&ctx, input)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Result: %s\n", res)
	fmt.Fprintf(out, "Consumed: %d/%d\n", n, len(input))
	fmt.Fprintf(out, "State: %d\n", ctx.State())
	if res == ctrie.Finish {
		if sig, ok := sc.Table().Lookup(ctx.DescID()); ok {
			fmt.Fprintf(out, "Signature: %s (%s)\n", sig.ID, sig.Name)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func trieScanner() (*scanner.Scanner, error) {
	return buildScanner(signatureOptions{
		Path:          trieSignaturesPath,
		Set:           trieSet,
		CaseSensitive: !trieCaseInsensitive,
	}, 0, newLogger(), nil)
}

func selectTrie() (*ctrie.Trie, error) {
	sc, err := trieScanner()
	if err != nil {
		return nil, err
	}
	return trieOf(sc, trieKind)
}

func trieOf(sc *scanner.Scanner, kind string) (*ctrie.Trie, error) {
	var t *ctrie.Trie
	switch kind {
	case "anchored":
		t = sc.AnchoredTrie()
	case "stream":
		t = sc.StreamTrie()
	default:
		return nil, fmt.Errorf("unknown trie kind: %s", kind)
	}
	if t == nil {
		return nil, fmt.Errorf("no %s signatures selected", kind)
	}
	return t, nil
}
