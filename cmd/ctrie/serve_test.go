package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommand_Exists(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("http"))
}

func TestServeCommand_Integration(t *testing.T) {
	// Arrange
	quiet = true
	serveSignaturesPath = ""
	serveCaseInsensitive = false
	serveHTTPAddr = ""
	configPath = ""

	pr, pw := io.Pipe()
	out := &bytes.Buffer{}
	testCmd := &cobra.Command{
		Use:  "serve",
		RunE: runServe,
	}
	testCmd.SetIn(pr)
	testCmd.SetOut(out)
	testCmd.SetErr(&bytes.Buffer{})

	done := make(chan error, 1)
	go func() {
		done <- testCmd.Execute()
	}()

	// Act
	_, err := pw.Write([]byte(`{"type":"scan","payload":{"content":"token ghp_abc","source":"inline"}}` + "\n"))
	require.NoError(t, err)
	_, err = pw.Write([]byte(`{"type":"close","payload":{}}` + "\n"))
	require.NoError(t, err)
	pw.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("command did not exit in time")
	}

	// Assert
	var kinds []string
	sc := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	for sc.Scan() {
		var resp struct {
			Type    string `json:"type"`
			Success bool   `json:"success"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		assert.True(t, resp.Success, resp.Type)
		kinds = append(kinds, resp.Type)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, "ready", kinds[0])
	assert.Contains(t, kinds, "scan")
	assert.Contains(t, out.String(), "token.github-pat")
}
