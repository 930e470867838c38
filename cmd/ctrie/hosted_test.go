package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubCommand_Flags(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"github"})
	require.NoError(t, err)
	assert.Equal(t, "github", cmd.Name())

	tests := []struct {
		flag string
		def  string
	}{
		{"no-clone", "false"},
		{"git", "false"},
		{"token", ""},
		{"output", "ctrie.db"},
	}
	for _, tt := range tests {
		f := cmd.Flags().Lookup(tt.flag)
		require.NotNil(t, f, "--%s flag should exist", tt.flag)
		assert.Equal(t, tt.def, f.DefValue, tt.flag)
	}
}

func TestGitLabCommand_Flags(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"gitlab"})
	require.NoError(t, err)
	assert.Equal(t, "gitlab", cmd.Name())
	assert.Equal(t, "gitlab [namespace/project]", cmd.Use)

	for _, name := range []string{"token", "group", "user", "url", "output", "format", "no-clone", "git"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "--%s flag should exist", name)
	}
}

func TestSplitOwnerRepo(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "valid owner/repo", input: "praetorian-inc/ctrie", want: []string{"praetorian-inc", "ctrie"}},
		{name: "owner with hyphens", input: "my-org/my-repo", want: []string{"my-org", "my-repo"}},
		{name: "no slash", input: "invalid", want: []string{"invalid"}},
		{name: "multiple slashes", input: "owner/repo/extra", want: []string{"owner", "repo", "extra"}},
		{name: "empty string", input: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitOwnerRepo(tt.input))
		})
	}
}

func TestGitLabCloneURL(t *testing.T) {
	tests := []struct {
		base    string
		project string
		want    string
	}{
		{"", "group/project", "https://gitlab.com/group/project.git"},
		{"https://git.example.com/", "a/b/c", "https://git.example.com/a/b/c.git"},
		{"https://git.example.com/api/v4", "/team/app/", "https://git.example.com/team/app.git"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gitlabCloneURL(tt.base, tt.project))
	}
}

func TestRunGitHubScan_Validation(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	githubToken = ""
	githubOrg = ""
	githubUser = ""

	tests := []struct {
		name    string
		args    []string
		noClone bool
		want    string
	}{
		{name: "no target", want: "must specify owner/repo"},
		{name: "bad repo", args: []string{"just-a-name"}, want: "invalid repository format"},
		{name: "no-clone without token", args: []string{"o/r"}, noClone: true, want: "--no-clone requires"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			githubNoClone = tt.noClone
			defer func() { githubNoClone = false }()
			cmd, _, _ := newTestCmd()

			err := runGitHubScan(cmd, tt.args)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunGitLabScan_Validation(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "")
	gitlabToken = ""
	gitlabUser = ""

	tests := []struct {
		name  string
		args  []string
		group string
		want  string
	}{
		{name: "no target", want: "must specify namespace/project"},
		{name: "group without token", group: "platform", want: "token is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gitlabGroup = tt.group
			defer func() { gitlabGroup = "" }()
			cmd, _, _ := newTestCmd()

			err := runGitLabScan(cmd, tt.args)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
