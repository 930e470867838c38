package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/praetorian-inc/ctrie/pkg/explore"
	"github.com/spf13/cobra"
)

var (
	exploreSignaturesPath  string
	exploreSet             string
	exploreCaseInsensitive bool
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Interactively explore the compiled tries",
	Long: `Launch an interactive TUI to browse the states of the signature tries.

Features:
  - Three-pane layout: filters, states table, state details
  - Faceted filtering by trie, node kind, fan-out, category, and signature
  - Follow transitions down the trie and back to the parent
  - Probe overlay that feeds input through a trie byte by byte
  - Full text dump of either trie
  - Sortable states table`,
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().StringVar(&exploreSignaturesPath, "signatures", "", "Path to a signatures file or directory (default: builtin)")
	exploreCmd.Flags().StringVar(&exploreSet, "set", "", "Only use signatures from this builtin set")
	exploreCmd.Flags().BoolVar(&exploreCaseInsensitive, "case-insensitive", false, "Fold ASCII letters when matching")
}

func runExplore(cmd *cobra.Command, args []string) error {
	sc, err := buildScanner(signatureOptions{
		Path:          exploreSignaturesPath,
		Set:           exploreSet,
		CaseSensitive: !exploreCaseInsensitive,
	}, 0, newLogger(), nil)
	if err != nil {
		return err
	}

	model, err := explore.New(sc)
	if err != nil {
		return fmt.Errorf("loading tries: %w", err)
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running explore TUI: %w", err)
	}

	return nil
}
