// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/kraklabs/cratescan/pkg/pipeline"
)

var (
	// validGitURLPattern matches ssh style git URLs.
	validGitURLPattern = regexp.MustCompile(`^(git@|ssh://)[\w.\-@:/%]+$`)

	// dangerousCharsPattern matches characters that have no place in a
	// clone URL.
	dangerousCharsPattern = regexp.MustCompile(`[;&|$` + "`" + `\n\r\\]`)

	// repoNamePattern matches a GitHub "owner/name".
	repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*/[A-Za-z0-9_.\-]+$`)
)

// CloneConfig configures a Cloner.
type CloneConfig struct {
	// Root is the directory repositories are cloned under, as
	// <Root>/<owner>/<name>.
	Root string

	// Depth limits history. Default: 1 (shallow).
	Depth int

	Logger *slog.Logger
}

// Cloner materializes repositories on local disk.
type Cloner struct {
	root   string
	depth  int
	logger *slog.Logger
}

// NewCloner creates a Cloner.
func NewCloner(cfg CloneConfig) *Cloner {
	if cfg.Depth <= 0 {
		cfg.Depth = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cloner{root: cfg.Root, depth: cfg.Depth, logger: cfg.Logger}
}

// RepoDir returns the local directory for a repository full name.
func (c *Cloner) RepoDir(fullName string) (string, error) {
	if !repoNamePattern.MatchString(fullName) {
		return "", fmt.Errorf("invalid repository name %q", fullName)
	}
	for _, part := range strings.Split(fullName, "/") {
		if part == "." || part == ".." {
			return "", fmt.Errorf("invalid repository name %q", fullName)
		}
	}
	return filepath.Join(c.root, filepath.FromSlash(fullName)), nil
}

// Sync clones repo, or pulls it when a clone already exists. It returns the
// local directory.
func (c *Cloner) Sync(ctx context.Context, repo pipeline.RepoRef) (string, error) {
	dir, err := c.RepoDir(repo.FullName)
	if err != nil {
		return "", err
	}
	if err := validateGitURL(repo.CloneURL); err != nil {
		return "", fmt.Errorf("invalid clone url: %w", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return dir, c.pull(ctx, dir)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return "", fmt.Errorf("create clone dir: %w", err)
	}

	c.logger.Debug("clone.start", "repo", repo.FullName, "depth", c.depth)
	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          repo.CloneURL,
		Depth:        c.depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(dir) // partial clone
		return "", fmt.Errorf("clone %s: %w", repo.FullName, err)
	}
	return dir, nil
}

func (c *Cloner) pull(ctx context.Context, dir string) error {
	r, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("worktree %s: %w", dir, err)
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:   "origin",
		Depth:        c.depth,
		SingleBranch: true,
		Force:        true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", dir, err)
	}
	c.logger.Debug("clone.updated", "dir", dir, "up_to_date", err != nil)
	return nil
}

// validateGitURL rejects URLs that are empty, carry credentials or use an
// unsupported scheme.
func validateGitURL(gitURL string) error {
	if gitURL == "" {
		return fmt.Errorf("git URL is empty")
	}
	if dangerousCharsPattern.MatchString(gitURL) {
		return fmt.Errorf("git URL contains dangerous characters")
	}

	switch {
	case strings.HasPrefix(gitURL, "http://"), strings.HasPrefix(gitURL, "https://"):
		parsed, err := url.Parse(gitURL)
		if err != nil {
			return fmt.Errorf("invalid URL format: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("git URL missing host")
		}
		if parsed.User != nil {
			if _, hasPassword := parsed.User.Password(); hasPassword {
				return fmt.Errorf("git URL should not contain embedded password")
			}
		}
		return nil
	case strings.HasPrefix(gitURL, "git@"), strings.HasPrefix(gitURL, "ssh://"):
		if !validGitURLPattern.MatchString(gitURL) {
			return fmt.Errorf("invalid SSH git URL format")
		}
		return nil
	case strings.HasPrefix(gitURL, "file://"):
		return nil
	}
	return fmt.Errorf("unsupported git URL protocol: must be https://, git@, ssh://, or file://")
}
