package summarize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joss/torch/internal/config"
	"github.com/joss/torch/internal/tokens"
)

// NoReadmeDescription is used when the workspace has no README.md.
const NoReadmeDescription = "Unknown. The workspace has no README.md describing the project."

// ReadmeSummarizer turns the workspace README into a project description.
type ReadmeSummarizer interface {
	SummarizeReadme(ctx context.Context, readme string) (string, error)
}

// DescribeWorkspace returns the project description used as context for
// file summaries. A cached description is reused; otherwise README.md is
// summarized and the result cached.
func DescribeWorkspace(ctx context.Context, paths *config.Paths, rs ReadmeSummarizer, maxTokens int) (string, error) {
	if cached, err := os.ReadFile(paths.WorkspaceSummary); err == nil {
		if desc := strings.TrimSpace(string(cached)); desc != "" {
			return desc, nil
		}
	}

	readme, err := os.ReadFile(filepath.Join(paths.Workspace, "README.md"))
	if errors.Is(err, os.ErrNotExist) {
		return NoReadmeDescription, nil
	}
	if err != nil {
		return "", err
	}

	contents := string(readme)
	if maxTokens > 0 {
		contents = tokens.Truncate(contents, maxTokens)
	}
	desc, err := rs.SummarizeReadme(ctx, contents)
	if err != nil {
		return "", err
	}
	desc = strings.TrimSpace(desc)

	if err := writeFile(paths.WorkspaceSummary, []byte(desc)); err != nil {
		log.Warn("workspace_summary_not_cached", nil, err)
	}
	return desc, nil
}
