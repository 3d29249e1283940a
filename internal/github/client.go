package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/dispatch/internal/config"
)

// NewClient builds an API client from config. With GitHub App settings it
// authenticates as the installation; without them it returns an
// unauthenticated client, which can read public repositories only.
func NewClient(cfg config.GitHubConfig) (*gogithub.Client, error) {
	if cfg.AppID == "" && cfg.InstallationID == "" {
		return gogithub.NewClient(nil), nil
	}

	appID, err := strconv.ParseInt(cfg.AppID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid github app_id %q: %w", cfg.AppID, err)
	}
	installationID, err := strconv.ParseInt(cfg.InstallationID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid github installation_id %q: %w", cfg.InstallationID, err)
	}
	return NewGitHubClient(appID, installationID, []byte(cfg.PrivateKey), cfg.PrivateKeyPath)
}

// NewGitHubClient creates a GitHub API client authenticated as a GitHub App
// installation. ghinstallation handles the JWT and installation token
// refresh.
//
// privateKey can be raw PEM bytes or base64-encoded PEM. When it is empty
// the key is read from privateKeyPath.
func NewGitHubClient(appID, installationID int64, privateKey []byte, privateKeyPath string) (*gogithub.Client, error) {
	key, err := resolvePrivateKey(privateKey, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("resolving private key: %w", err)
	}

	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, key)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}
	return gogithub.NewClient(&http.Client{Transport: transport}), nil
}

func resolvePrivateKey(key []byte, keyPath string) ([]byte, error) {
	if s := strings.TrimSpace(string(key)); s != "" {
		if strings.HasPrefix(s, "-----BEGIN") {
			return []byte(s), nil
		}
		for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
			if decoded, err := enc.DecodeString(s); err == nil {
				return decoded, nil
			}
		}
		return nil, fmt.Errorf("private key is neither PEM nor valid base64")
	}

	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key file %s: %w", keyPath, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("no private key provided: set private_key or private_key_path")
}

// Assigner writes assignment decisions back to GitHub.
type Assigner struct {
	client *gogithub.Client
}

// NewAssigner wraps an API client.
func NewAssigner(client *gogithub.Client) *Assigner {
	return &Assigner{client: client}
}

// Assign adds login as an assignee of the issue identified by key
// (owner/repo#N). When comment is non-empty it is posted on the issue too.
func (a *Assigner) Assign(ctx context.Context, key, login, comment string) error {
	owner, repo, number, err := ParseIssueKey(key)
	if err != nil {
		return err
	}
	if _, _, err := a.client.Issues.AddAssignees(ctx, owner, repo, number, []string{login}); err != nil {
		return fmt.Errorf("assigning %s to %s: %w", login, key, err)
	}
	if comment == "" {
		return nil
	}
	if _, _, err := a.client.Issues.CreateComment(ctx, owner, repo, number, &gogithub.IssueComment{Body: gogithub.String(comment)}); err != nil {
		return fmt.Errorf("commenting on %s: %w", key, err)
	}
	return nil
}
