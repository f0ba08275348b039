// Package gitrefs reads and writes ".git/HEAD" and ".git/refs/**": the
// external-collaborator interface the fetch driver uses to record which
// branch was cloned and what it points at.
package gitrefs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// Repo is rooted at a ".git" directory.
type Repo struct {
	gitDir string
}

func Open(gitDir string) *Repo { return &Repo{gitDir: gitDir} }

// WriteHead writes ".git/HEAD" as a symbolic ref: "ref: <refname>\n". This
// is the only form this core ever writes, per spec; readers are expected to
// accept a literal hash too.
func (r *Repo) WriteHead(refName string) error {
	p := filepath.Join(r.gitDir, "HEAD")
	content := "ref: " + refName + "\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return giterrors.Wrap(giterrors.IOError, "write HEAD", err)
	}
	return nil
}

// ReadHead returns either a symbolic ref name (with the "ref: " prefix
// stripped) or a literal hash, and reports which.
func (r *Repo) ReadHead() (refName string, hash githash.Hash, symbolic bool, err error) {
	p := filepath.Join(r.gitDir, "HEAD")
	data, readErr := os.ReadFile(p)
	if readErr != nil {
		return "", githash.Hash{}, false, giterrors.Wrap(giterrors.IOError, "read HEAD", readErr)
	}
	content := strings.TrimSpace(string(data))
	if name, ok := strings.CutPrefix(content, "ref: "); ok {
		return strings.TrimSpace(name), githash.Hash{}, true, nil
	}
	h, err := githash.FromHexString(content)
	if err != nil {
		return "", githash.Hash{}, false, giterrors.Wrap(giterrors.MalformedObject, "HEAD does not contain a valid hash", err)
	}
	return "", h, false, nil
}

// WriteRef writes a ref file's 40-hex hash without a trailing newline, per
// spec; this core's own ReadRef, like real git, accepts either form.
func (r *Repo) WriteRef(refName string, h githash.Hash) error {
	p := filepath.Join(r.gitDir, filepath.FromSlash(refName))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return giterrors.Wrap(giterrors.IOError, "create ref directory", err)
	}
	if err := os.WriteFile(p, []byte(h.String()), 0o644); err != nil {
		return giterrors.Wrap(giterrors.IOError, "write ref "+refName, err)
	}
	return nil
}

// ReadRef reads a ref file, tolerating either a trailing newline or none.
func (r *Repo) ReadRef(refName string) (githash.Hash, error) {
	p := filepath.Join(r.gitDir, filepath.FromSlash(refName))
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return githash.Hash{}, giterrors.Wrap(giterrors.NotFound, "ref "+refName, err)
		}
		return githash.Hash{}, giterrors.Wrap(giterrors.IOError, "read ref "+refName, err)
	}
	return githash.FromHexString(strings.TrimSpace(string(data)))
}
