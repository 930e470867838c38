package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/praetorian-inc/ctrie/pkg/enum"
	"github.com/spf13/cobra"
)

var (
	gitlabToken        string
	gitlabGroup        string
	gitlabUser         string
	gitlabBaseURL      string
	gitlabOutputPath   string
	gitlabOutputFormat string
	gitlabNoClone      bool
	gitlabGit          bool
)

var gitlabCmd = &cobra.Command{
	Use:   "gitlab [namespace/project]",
	Short: "Scan GitLab projects",
	Long: `Scan GitLab projects for byte signatures by cloning them locally.
A single public project needs no token; groups and users are listed
through the API and need --token or GITLAB_TOKEN.
Use --git to scan every blob in the history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGitLabScan,
}

func init() {
	gitlabCmd.Flags().StringVar(&gitlabToken, "token", "", "GitLab token (or GITLAB_TOKEN env)")
	gitlabCmd.Flags().StringVar(&gitlabGroup, "group", "", "Scan all projects in group")
	gitlabCmd.Flags().StringVar(&gitlabUser, "user", "", "Scan all projects for user")
	gitlabCmd.Flags().StringVar(&gitlabBaseURL, "url", "", "GitLab base URL (default: https://gitlab.com)")
	gitlabCmd.Flags().StringVar(&gitlabOutputPath, "output", "ctrie.db", "Output store path")
	gitlabCmd.Flags().StringVar(&gitlabOutputFormat, "format", "human", "Output format: json, human")
	gitlabCmd.Flags().BoolVar(&gitlabNoClone, "no-clone", false, "Fetch files via API instead of cloning (requires token, no history)")
	gitlabCmd.Flags().BoolVar(&gitlabGit, "git", false, "Scan full git history (slower; default scans only current files)")
}

func runGitLabScan(cmd *cobra.Command, args []string) error {
	token := gitlabToken
	if token == "" {
		token = os.Getenv("GITLAB_TOKEN")
	}

	project := args0(args)
	if project == "" && gitlabGroup == "" && gitlabUser == "" {
		return fmt.Errorf("must specify namespace/project, --group, or --user")
	}
	if token == "" && (gitlabNoClone || project == "") {
		return fmt.Errorf("a GitLab token is required for --no-clone, --group, and --user: use --token or GITLAB_TOKEN")
	}

	config := enum.Config{MaxFileSize: defaultHostedMaxFileSize, Logger: newLogger()}
	target := "gitlab:" + firstNonEmpty(project, gitlabGroup, gitlabUser)

	var repos []enum.RepoInfo
	if token == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Note: No GitLab token provided. Cloning %s anonymously.\n\n", project)
		repos = []enum.RepoInfo{{Name: project, CloneURL: gitlabCloneURL(gitlabBaseURL, project)}}
	} else {
		glEnum, err := enum.NewGitLabEnumerator(enum.GitLabConfig{
			Token:   token,
			BaseURL: gitlabBaseURL,
			Project: project,
			Group:   gitlabGroup,
			User:    gitlabUser,
			Config:  config,
		})
		if err != nil {
			return fmt.Errorf("creating GitLab client: %w", err)
		}
		if gitlabNoClone {
			return hostedScan(cmd, glEnum, target, gitlabOutputPath, gitlabOutputFormat)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Enumerating projects...\n")
		repos, err = glEnum.ListProjectURLs(context.Background())
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Found %d projects to scan\n\n", len(repos))
	}

	cloneEnum := enum.NewCloneEnumerator(repos, config)
	cloneEnum.History = gitlabGit
	cloneEnum.Token = token
	return hostedScan(cmd, cloneEnum, target, gitlabOutputPath, gitlabOutputFormat)
}

// gitlabCloneURL builds the HTTPS clone URL of a project. baseURL may be
// the instance root or its /api/v4 endpoint.
func gitlabCloneURL(baseURL, project string) string {
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/api/v4")
	return baseURL + "/" + strings.Trim(project, "/") + ".git"
}
