package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/praetorian-inc/ctrie/pkg/signature"
	"github.com/praetorian-inc/ctrie/pkg/types"
	"github.com/spf13/cobra"
)

var (
	signaturesPath    string
	signaturesSet     string
	signaturesInclude string
	signaturesExclude string
	signaturesFormat  string
)

var signaturesCmd = &cobra.Command{
	Use:   "signatures",
	Short: "Manage byte signatures",
	Long:  "Commands for listing and inspecting byte signatures and signature sets",
}

var signaturesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available signatures",
	Long:  "Display the signature table with ids, names, patterns, and kinds",
	RunE:  runSignaturesList,
}

var signaturesSetsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List builtin signature sets",
	RunE:  runSignaturesSets,
}

func init() {
	signaturesCmd.AddCommand(signaturesListCmd)
	signaturesCmd.AddCommand(signaturesSetsCmd)

	signaturesListCmd.Flags().StringVar(&signaturesPath, "signatures", "", "Path to a signatures file or directory (default: builtin)")
	signaturesListCmd.Flags().StringVar(&signaturesSet, "set", "", "Only list signatures from this builtin set")
	signaturesListCmd.Flags().StringVar(&signaturesInclude, "include", "", "Include signatures whose id matches a regex (comma-separated)")
	signaturesListCmd.Flags().StringVar(&signaturesExclude, "exclude", "", "Exclude signatures whose id matches a regex (comma-separated)")
	signaturesListCmd.Flags().StringVar(&signaturesFormat, "format", "table", "Output format: table, json")
	signaturesSetsCmd.Flags().StringVar(&signaturesFormat, "format", "table", "Output format: table, json")
}

func runSignaturesList(cmd *cobra.Command, args []string) error {
	sigs, err := loadSignatures(signatureOptions{
		Path:    signaturesPath,
		Set:     signaturesSet,
		Include: signaturesInclude,
		Exclude: signaturesExclude,
	})
	if err != nil {
		return fmt.Errorf("loading signatures: %w", err)
	}

	switch signaturesFormat {
	case "json":
		return writeJSON(cmd, sigs)
	case "table":
		return outputSignaturesTable(cmd, sigs)
	default:
		return fmt.Errorf("unknown output format: %s", signaturesFormat)
	}
}

func runSignaturesSets(cmd *cobra.Command, args []string) error {
	sets, err := signature.NewLoader().LoadBuiltinSets()
	if err != nil {
		return fmt.Errorf("loading builtin sets: %w", err)
	}

	switch signaturesFormat {
	case "json":
		return writeJSON(cmd, sets)
	case "table":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "ID\tName\tSignatures\n")
		fmt.Fprintf(w, "--\t----\t----------\n")
		for _, s := range sets {
			fmt.Fprintf(w, "%s\t%s\t%d\n", s.ID, s.Name, len(s.SignatureIDs))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", signaturesFormat)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputSignaturesTable(cmd *cobra.Command, sigs []*types.Signature) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "ID\tName\tKind\tBytes\tCategories\n")
	fmt.Fprintf(w, "--\t----\t----\t-----\t----------\n")

	for _, s := range sigs {
		kind := "stream"
		if s.Anchored {
			kind = "anchored"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, kind, renderBytes(s.Bytes), strings.Join(s.Categories, ","))
	}

	return nil
}

// renderBytes escapes bytes outside printable ASCII as \xHH, matching the
// labels in a trie dump.
func renderBytes(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x21 && c <= 0x7e && c != '\\' {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	return sb.String()
}
