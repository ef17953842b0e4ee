// Package lockmgr implements the directory-as-lock exclusion pattern: a
// lock is the presence and contents of a directory, not an OS advisory
// lock. mkdir's atomic create-if-not-exists is the only coordination
// primitive needed across concurrent clawbox invocations.
package lockmgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/tartrun"
)

// Kind is the shared-resource category a lock protects.
type Kind string

const (
	KindOpenclawSource  Kind = "openclaw-source"
	KindOpenclawPayload Kind = "openclaw-payload"
	KindSignalPayload   Kind = "signal-payload"
)

// pathField returns the file name used to record the locked path for kind.
func (k Kind) pathField() string {
	switch k {
	case KindOpenclawSource:
		return "source_path"
	case KindOpenclawPayload:
		return "payload_path"
	case KindSignalPayload:
		return "signal_payload_path"
	default:
		return "path"
	}
}

const maxAttempts = 8
const initialBackoff = 50 * time.Millisecond
const maxBackoff = 800 * time.Millisecond

// Manager grants, reclaims, and releases locks rooted at <homeDir>/.clawbox/locks.
type Manager struct {
	root    string
	runtime tartrun.Runtime
}

// New constructs a Manager. homeDir and runtime are passed explicitly (no
// package-level global) so tests can point multiple Managers at distinct
// t.TempDir() roots and exercise concurrent Acquire calls without real
// multi-process concurrency.
func New(homeDir string, runtime tartrun.Runtime) *Manager {
	return &Manager{
		root:    filepath.Join(homeDir, ".clawbox", "locks"),
		runtime: runtime,
	}
}

func (m *Manager) kindRoot(kind Kind) string {
	return filepath.Join(m.root, string(kind))
}

func canonicalize(rawPath string) (string, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	// Provisioning may lock a guest-payload directory before its final
	// symlink resolution target exists; fall back to Abs alone.
	return abs, nil
}

func lockDirName(canonicalPath string) string {
	sum := sha256.Sum256([]byte(canonicalPath))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) lockDir(kind Kind, canonicalPath string) string {
	return filepath.Join(m.kindRoot(kind), lockDirName(canonicalPath))
}

func writeOwnerFields(dir, vm, pathField, canonicalPath string) error {
	hostname, _ := os.Hostname()
	if err := os.WriteFile(filepath.Join(dir, "owner_vm"), []byte(vm), 0644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "owner_host"), []byte(hostname), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, pathField), []byte(canonicalPath), 0644)
}

func readOwnerVM(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "owner_vm"))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Acquire grants vm exclusive ownership of (kind, rawPath), per the
// algorithm in SPEC_FULL.md §4.1 / spec.md §4.1 steps 1-4.
func (m *Manager) Acquire(ctx context.Context, kind Kind, vm, rawPath string) error {
	canonicalPath, err := canonicalize(rawPath)
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not resolve path %s", rawPath)
	}

	dir := m.lockDir(kind, canonicalPath)
	pathField := kind.pathField()

	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return clawerr.Wrap(clawerr.LockContention, ctx.Err(), "Could not acquire lock for %s", canonicalPath)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			lastErr = err
			continue
		}

		createErr := os.Mkdir(dir, 0755)
		if createErr == nil {
			if err := writeOwnerFields(dir, vm, pathField, canonicalPath); err != nil {
				lastErr = err
				continue
			}
			if err := m.pruneOtherLocksForVM(kind, vm, dir); err != nil {
				lastErr = err
				continue
			}
			return nil
		}

		if !os.IsExist(createErr) {
			lastErr = createErr
			continue
		}

		ownerVM, ok := readOwnerVM(dir)
		if !ok || ownerVM == "" {
			// Abandoned: owner fields missing or unreadable.
			if err := writeOwnerFields(dir, vm, pathField, canonicalPath); err != nil {
				lastErr = err
				continue
			}
			return nil
		}

		if ownerVM == vm {
			if err := writeOwnerFields(dir, vm, pathField, canonicalPath); err != nil {
				lastErr = err
				continue
			}
			return nil
		}

		running, runErr := m.runtime.VMRunning(ownerVM)
		if runErr != nil {
			lastErr = runErr
			continue
		}
		if running {
			return clawerr.New(clawerr.LockContention, "%s already in use by running VM '%s'", canonicalPath, ownerVM)
		}

		// Owner VM is not running: reclaim.
		if err := writeOwnerFields(dir, vm, pathField, canonicalPath); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return clawerr.Wrap(clawerr.LockContention, lastErr, "Could not acquire lock for %s", canonicalPath)
	}
	return clawerr.New(clawerr.LockContention, "Could not acquire lock for %s", canonicalPath)
}

// pruneOtherLocksForVM removes any other lock directory of the same kind
// already owned by vm, keeping exceptDir, to prevent stale duplicates after
// a path change (Testable Property 2 — lock uniqueness per (kind, vm)).
func (m *Manager) pruneOtherLocksForVM(kind Kind, vm, exceptDir string) error {
	entries, err := os.ReadDir(m.kindRoot(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.kindRoot(kind), e.Name())
		if dir == exceptDir {
			continue
		}
		if owner, ok := readOwnerVM(dir); ok && owner == vm {
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReleaseAllFor removes every lock directory owned by vm, across every
// kind. Missing roots and stray non-directory entries are tolerated.
func (m *Manager) ReleaseAllFor(vm string) error {
	kinds := []Kind{KindOpenclawSource, KindOpenclawPayload, KindSignalPayload}

	for _, kind := range kinds {
		entries, err := os.ReadDir(m.kindRoot(kind))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return clawerr.Wrap(clawerr.Precondition, err, "could not list locks for %s", kind)
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(m.kindRoot(kind), e.Name())
			if owner, ok := readOwnerVM(dir); ok && owner == vm {
				if err := os.RemoveAll(dir); err != nil {
					return clawerr.Wrap(clawerr.Precondition, err, "could not release lock %s", dir)
				}
			}
		}
	}

	return nil
}

// PathFor returns the canonical path currently locked by vm for kind, or
// ("", false) if none.
func (m *Manager) PathFor(kind Kind, vm string) (string, bool) {
	entries, err := os.ReadDir(m.kindRoot(kind))
	if err != nil {
		return "", false
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.kindRoot(kind), e.Name())
		if owner, ok := readOwnerVM(dir); ok && owner == vm {
			data, err := os.ReadFile(filepath.Join(dir, kind.pathField()))
			if err != nil {
				return "", false
			}
			return string(data), true
		}
	}

	return "", false
}
