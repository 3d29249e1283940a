package cmd

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// parseRepoArg splits an "owner/repo" string and returns owner and repo.
func parseRepoArg(repoArg string) (owner, repo string, err error) {
	parts := strings.SplitN(repoArg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: expected owner/repo, got %q", repoArg)
	}
	return parts[0], parts[1], nil
}

// resolveRepos determines which repos to act on from args and config.
func resolveRepos(args []string, cfgRepos []string) ([]string, error) {
	if len(args) > 0 {
		for _, arg := range args {
			if _, _, err := parseRepoArg(arg); err != nil {
				return nil, err
			}
		}
		return args, nil
	}

	if len(cfgRepos) == 0 {
		return nil, fmt.Errorf("no repos specified and none configured; provide repos as arguments or add them to the config file")
	}
	return cfgRepos, nil
}

// forEach runs fn over items with at most workers running at once.
func forEach[T any](items []T, workers int, fn func(T)) {
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(it T) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(it)
		}(item)
	}
	wg.Wait()
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// dbFileSize returns the size in bytes of the database file.
func dbFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
