package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetSignaturesFlags() {
	signaturesPath = ""
	signaturesSet = ""
	signaturesInclude = ""
	signaturesExclude = ""
	signaturesFormat = "table"
}

func TestRunSignaturesList(t *testing.T) {
	resetSignaturesFlags()
	cmd, stdout, _ := newTestCmd()

	err := runSignaturesList(cmd, []string{})
	require.NoError(t, err)

	output := stdout.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "Kind")
	assert.Contains(t, output, "magic.png")
	assert.Contains(t, output, `\x89PNG\x0d\x0a\x1a\x0a`)
	assert.Contains(t, output, "token.github-pat")
}

func TestRunSignaturesListJSON(t *testing.T) {
	resetSignaturesFlags()
	signaturesFormat = "json"
	signaturesInclude = `^magic\.pdf$`
	cmd, stdout, _ := newTestCmd()

	err := runSignaturesList(cmd, []string{})
	require.NoError(t, err)

	var sigs []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &sigs))
	require.Len(t, sigs, 1)
	assert.Equal(t, "magic.pdf", sigs[0]["ID"])
	assert.Equal(t, true, sigs[0]["Anchored"])
}

func TestRunSignaturesListUnknownFormat(t *testing.T) {
	resetSignaturesFlags()
	signaturesFormat = "yaml"
	cmd, _, _ := newTestCmd()

	err := runSignaturesList(cmd, []string{})
	assert.Error(t, err)
}

func TestRunSignaturesSets(t *testing.T) {
	resetSignaturesFlags()
	cmd, stdout, _ := newTestCmd()

	err := runSignaturesSets(cmd, []string{})
	require.NoError(t, err)

	output := stdout.String()
	assert.Contains(t, output, "magic")
	assert.Contains(t, output, "secrets")
}

func TestRenderBytes(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("AKIA"), "AKIA"},
		{[]byte("a b"), `a\x20b`},
		{[]byte{0xca, 0xfe}, `\xca\xfe`},
		{[]byte(`\`), `\x5c`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, renderBytes(tt.in))
	}
}
