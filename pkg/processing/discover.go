package processing

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/systemstart/stackctl/pkg/api"
)

const stackPattern = "**/*" + api.StackFileSuffix

// DiscoverStacks finds *.stack.yaml files below root up to maxDepth
// directories deep. A maxDepth of -1 means unlimited. 0 means only root
// itself. Results are sorted by path depth, then by path.
func DiscoverStacks(root string, maxDepth int) ([]*api.Stack, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(absRoot), stackPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", absRoot, err)
	}

	var paths []string
	for _, m := range matches {
		if maxDepth >= 0 && pathDepth(filepath.Dir(m)) > maxDepth {
			continue
		}
		paths = append(paths, m)
	}

	slices.SortFunc(paths, func(a, b string) int {
		if d := pathDepth(a) - pathDepth(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	stacks := make([]*api.Stack, 0, len(paths))
	for _, p := range paths {
		s, err := api.LoadStack(filepath.Join(absRoot, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		stacks = append(stacks, s)
	}
	return stacks, nil
}

func pathDepth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
