package main

import (
	"context"
	"fmt"
	"os"

	"github.com/praetorian-inc/ctrie/pkg/enum"
	"github.com/spf13/cobra"
)

var (
	githubToken        string
	githubOrg          string
	githubUser         string
	githubBaseURL      string
	githubOutputPath   string
	githubOutputFormat string
	githubNoClone      bool
	githubGit          bool
)

var githubCmd = &cobra.Command{
	Use:   "github [owner/repo]",
	Short: "Scan GitHub repositories",
	Long: `Scan GitHub repositories for byte signatures by cloning them locally.
No API token needed for public repositories.
Use --token or GITHUB_TOKEN for private repos and higher rate limits.
Use --git to scan every blob in the history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGitHubScan,
}

func init() {
	githubCmd.Flags().StringVar(&githubToken, "token", "", "GitHub API token (or GITHUB_TOKEN env; optional for public repos)")
	githubCmd.Flags().StringVar(&githubOrg, "org", "", "Scan all repositories in organization")
	githubCmd.Flags().StringVar(&githubUser, "user", "", "Scan all repositories for user")
	githubCmd.Flags().StringVar(&githubBaseURL, "url", "", "GitHub Enterprise API URL")
	githubCmd.Flags().StringVar(&githubOutputPath, "output", "ctrie.db", "Output store path")
	githubCmd.Flags().StringVar(&githubOutputFormat, "format", "human", "Output format: json, human")
	githubCmd.Flags().BoolVar(&githubNoClone, "no-clone", false, "Fetch files via API instead of cloning (requires token, no history)")
	githubCmd.Flags().BoolVar(&githubGit, "git", false, "Scan full git history (slower; default scans only current files)")
}

func runGitHubScan(cmd *cobra.Command, args []string) error {
	token := githubToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	if githubNoClone && token == "" {
		return fmt.Errorf("--no-clone requires a GitHub API token: use --token or GITHUB_TOKEN")
	}
	if token == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Note: No GitHub token provided. Using unauthenticated access (60 requests/hour, public repos only).\n\n")
	}

	var owner, repo string
	if len(args) > 0 {
		parts := splitOwnerRepo(args[0])
		if len(parts) != 2 {
			return fmt.Errorf("invalid repository format, expected owner/repo (e.g., praetorian-inc/ctrie)")
		}
		owner, repo = parts[0], parts[1]
	}
	if repo == "" && githubOrg == "" && githubUser == "" {
		return fmt.Errorf("must specify owner/repo, --org, or --user")
	}

	config := enum.Config{MaxFileSize: defaultHostedMaxFileSize, Logger: newLogger()}
	ghEnum, err := enum.NewGitHubEnumerator(enum.GitHubConfig{
		Token:   token,
		BaseURL: githubBaseURL,
		Owner:   owner,
		Repo:    repo,
		Org:     githubOrg,
		User:    githubUser,
		Config:  config,
	})
	if err != nil {
		return fmt.Errorf("creating GitHub client: %w", err)
	}

	target := "github:" + firstNonEmpty(args0(args), githubOrg, githubUser)
	if githubNoClone {
		return hostedScan(cmd, ghEnum, target, githubOutputPath, githubOutputFormat)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Enumerating repositories...\n")
	repos, err := ghEnum.ListRepoURLs(context.Background())
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Found %d repositories to scan\n\n", len(repos))

	cloneEnum := enum.NewCloneEnumerator(repos, config)
	cloneEnum.History = githubGit
	cloneEnum.Token = token
	return hostedScan(cmd, cloneEnum, target, githubOutputPath, githubOutputFormat)
}

// splitOwnerRepo splits "owner/repo" into ["owner", "repo"].
func splitOwnerRepo(s string) []string {
	result := make([]string, 0, 2)
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			result = append(result, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		result = append(result, s[start:])
	}
	return result
}

func args0(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
