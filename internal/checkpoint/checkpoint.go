// Package checkpoint snapshots a workspace's working tree into a shadow git
// repository (its own .git, a foreign work-tree) so a session can restore
// to any point before a write tool ran. It is opt-in and the core never
// requires it: neither the session controller nor the executor calls it, so
// a snapshot is taken only where a caller invokes Snapshot.
package checkpoint

import (
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Checkpoint is one recorded snapshot.
type Checkpoint struct {
	Hash      string
	Label     string
	Timestamp time.Time
}

// Store manages one shadow git repository for one workspace root.
type Store struct {
	workDir   string
	gitDir    string
	mu        sync.Mutex
	history   []Checkpoint
	initError error
}

// New returns a Store for workDir, keeping its shadow .git under
// storageDir/shadow-<hash of workDir>. The repository is not touched until
// Init is called.
func New(workDir, storageDir string) *Store {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(workDir)))
	gitDir := filepath.Join(storageDir, "shadow-"+hash[:12], ".git")
	return &Store{workDir: workDir, gitDir: gitDir}
}

// Init creates the shadow repository and takes the base commit if one does
// not already exist. Safe to call more than once.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.gitDir); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.gitDir), 0o755); err != nil {
		return fmt.Errorf("checkpoint: create shadow dir: %w", err)
	}
	if err := s.run("init"); err != nil {
		return fmt.Errorf("checkpoint: git init: %w", err)
	}
	if err := s.run("config", "core.fileMode", "false"); err != nil {
		return fmt.Errorf("checkpoint: git config fileMode: %w", err)
	}
	if err := s.run("config", "user.name", "conductor"); err != nil {
		return fmt.Errorf("checkpoint: git config user.name: %w", err)
	}
	if err := s.run("config", "user.email", "conductor@localhost"); err != nil {
		return fmt.Errorf("checkpoint: git config user.email: %w", err)
	}

	_, err := s.commit("base snapshot")
	return err
}

// Snapshot stages every file under the workspace root and commits, tagging
// the commit with label (typically the tool call id or name that is about
// to run). Returns the commit hash.
func (s *Store) Snapshot(label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(label)
}

// commit assumes mu is held.
func (s *Store) commit(label string) (string, error) {
	if out, err := s.output("add", "."); err != nil {
		return "", fmt.Errorf("checkpoint: git add: %s: %w", out, err)
	}
	message := label
	if message == "" {
		message = "checkpoint"
	}
	if out, err := s.output("commit", "-m", message, "--allow-empty"); err != nil {
		return "", fmt.Errorf("checkpoint: git commit: %s: %w", out, err)
	}
	hashBytes, err := s.output("rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("checkpoint: rev-parse HEAD: %w", err)
	}
	hash := strings.TrimSpace(string(hashBytes))
	s.history = append(s.history, Checkpoint{Hash: hash, Label: label, Timestamp: time.Now().UTC()})
	return hash, nil
}

// Restore hard-resets the workspace root to hash and removes untracked
// files, discarding any writes made since that checkpoint.
func (s *Store) Restore(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if out, err := s.output("reset", "--hard", hash); err != nil {
		return fmt.Errorf("checkpoint: git reset: %s: %w", out, err)
	}
	if out, err := s.output("clean", "-fd"); err != nil {
		return fmt.Errorf("checkpoint: git clean: %s: %w", out, err)
	}
	return nil
}

// History returns every checkpoint taken this process lifetime, oldest
// first. It does not read the shadow repository's reflog; a process
// restart starts an empty in-memory history even though the commits
// persist on disk.
func (s *Store) History() []Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Checkpoint{}, s.history...)
}

func (s *Store) run(args ...string) error {
	_, err := s.output(args...)
	return err
}

func (s *Store) output(args ...string) ([]byte, error) {
	full := append([]string{"--git-dir=" + s.gitDir, "--work-tree=" + s.workDir}, args...)
	cmd := exec.Command("git", full...)
	return cmd.CombinedOutput()
}
