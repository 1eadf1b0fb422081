// Package store persists data set definitions in a git-backed, versioned
// file store and keeps the in-memory registry consistent with it.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// VersionedFS is the transactional file store definitions are persisted in.
// Writes and deletes between StartBatch and EndBatch commit as one change
// set, attributed when an author and message are supplied.
type VersionedFS interface {
	Exists(path string) bool
	ReadAll(path string) ([]byte, error)
	Write(path string, data []byte) error
	Delete(path string) error
	// WalkFiles visits every regular file under the store root. A non-nil
	// error from fn terminates the walk and is returned as-is.
	WalkFiles(fn func(path string, info os.FileInfo) error) error
	// StartBatch opens a change set. Blank author or message yields an
	// anonymous commit. Batches are serialized: a second StartBatch blocks
	// until the first EndBatch.
	StartBatch(author, message string)
	EndBatch() error
}

const (
	anonAuthor  = "system"
	anonMessage = "data set update"
	authorEmail = "@dashfold.local"
)

// GitFS implements VersionedFS over a go-billy worktree with a go-git
// repository recording every batch as a commit. The worktree can be osfs
// for durable stores or memfs in tests.
type GitFS struct {
	wt   billy.Filesystem
	repo *git.Repository

	// Batch state, guarded by holding the batch from StartBatch to EndBatch.
	batch   chan struct{} // 1-slot semaphore
	author  string
	message string
}

// norm gives every store path one canonical, root-anchored form so writes
// and reads resolve to the same worktree entry regardless of how the caller
// spelled the path.
func norm(path string) string {
	return "/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/")
}

// NewGitFS opens (or initializes) a git repository whose worktree is wt.
func NewGitFS(wt billy.Filesystem) (*GitFS, error) {
	dot, err := wt.Chroot(git.GitDirName)
	if err != nil {
		return nil, fmt.Errorf("chroot %s: %w", git.GitDirName, err)
	}
	st := filesystem.NewStorage(dot, cache.NewObjectLRUDefault())

	repo, err := git.Init(st, wt)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		repo, err = git.Open(st, wt)
	}
	if err != nil {
		return nil, fmt.Errorf("open data set store: %w", err)
	}

	g := &GitFS{wt: wt, repo: repo, batch: make(chan struct{}, 1)}
	return g, nil
}

// Exists reports whether path names an existing file.
func (g *GitFS) Exists(path string) bool {
	_, err := g.wt.Stat(norm(path))
	return err == nil
}

// ReadAll returns the whole content of the file at path.
func (g *GitFS) ReadAll(path string) ([]byte, error) {
	data, err := util.ReadFile(g.wt, norm(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the whole content of the file at path.
func (g *GitFS) Write(path string, data []byte) error {
	if err := util.WriteFile(g.wt, norm(path), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Delete removes path. Directories are removed recursively; a missing path
// is not an error.
func (g *GitFS) Delete(path string) error {
	if err := util.RemoveAll(g.wt, norm(path)); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// WalkFiles walks the worktree, skipping the repository metadata directory.
func (g *GitFS) WalkFiles(fn func(path string, info os.FileInfo) error) error {
	return util.Walk(g.wt, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if filepath.Base(path) == git.GitDirName {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(path, info)
	})
}

// StartBatch opens a change set, blocking until any in-flight batch ends.
func (g *GitFS) StartBatch(author, message string) {
	g.batch <- struct{}{}
	g.author = author
	g.message = message
}

// EndBatch stages everything the batch touched and commits it. A batch that
// changed nothing commits nothing. EndBatch must be called exactly once per
// StartBatch, on every exit path.
func (g *GitFS) EndBatch() error {
	defer func() { <-g.batch }()

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("end batch: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("end batch: stage: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("end batch: status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	author, message := g.author, g.message
	if author == "" || message == "" {
		author, message = anonAuthor, anonMessage
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: author + authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("end batch: commit: %w", err)
	}
	return nil
}

// Commit is one recorded change set in the store's history.
type Commit struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
}

// History returns up to limit commits, newest first. A limit <= 0 returns
// the full history.
func (g *GitFS) History(limit int) ([]Commit, error) {
	iter, err := g.repo.Log(&git.LogOptions{})
	if err != nil {
		// A store with no batches committed yet has no HEAD.
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store history: %w", err)
	}
	defer iter.Close()

	var out []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(out) >= limit {
			return storer.ErrStop
		}
		out = append(out, Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: c.Message,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store history: %w", err)
	}
	return out, nil
}
