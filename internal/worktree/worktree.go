// Package worktree materializes a tree object onto disk: the last step of
// a clone, turning the object store's content-addressed trees and blobs
// into ordinary files, directories, and symlinks.
package worktree

import (
	"os"
	"path/filepath"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/giterrors"
	"github.com/mustafaquraish/minigit/internal/objstore"
)

// Mode bits git records on a tree entry. Only these three shapes exist;
// anything else is a malformed tree.
const (
	modeRegular    uint32 = 0o100644
	modeExecutable uint32 = 0o100755
	modeSymlink    uint32 = 0o120000
)

// Checkout recursively writes the tree named by root under dir, which must
// already exist. It returns the number of blobs written, for logging.
func Checkout(store *objstore.Store, root githash.Hash, dir string) (int, error) {
	return checkoutTree(store, root, dir)
}

func checkoutTree(store *objstore.Store, h githash.Hash, dir string) (int, error) {
	obj, err := store.Read(h)
	if err != nil {
		return 0, giterrors.Wrap(giterrors.NotFound, "checkout tree "+h.String(), err)
	}
	if obj.Kind != gitobject.KindTree {
		return 0, giterrors.New(giterrors.MalformedObject, "checkout expected tree, got "+obj.Kind.String())
	}

	written := 0
	for _, entry := range obj.Tree.Entries {
		target := filepath.Join(dir, entry.Name)
		if entry.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, giterrors.Wrap(giterrors.IOError, "create directory "+target, err)
			}
			n, err := checkoutTree(store, entry.Hash, target)
			written += n
			if err != nil {
				return written, err
			}
			continue
		}

		n, err := checkoutBlob(store, entry, target)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func checkoutBlob(store *objstore.Store, entry gitobject.TreeEntry, target string) (int, error) {
	obj, err := store.Read(entry.Hash)
	if err != nil {
		return 0, giterrors.Wrap(giterrors.NotFound, "checkout blob "+entry.Hash.String(), err)
	}
	if obj.Kind != gitobject.KindBlob {
		return 0, giterrors.New(giterrors.MalformedObject, "checkout expected blob, got "+obj.Kind.String())
	}

	switch entry.Mode {
	case modeSymlink:
		if err := os.Symlink(string(obj.Blob.Data), target); err != nil {
			return 0, giterrors.Wrap(giterrors.IOError, "create symlink "+target, err)
		}
	case modeExecutable:
		if err := os.WriteFile(target, obj.Blob.Data, 0o755); err != nil {
			return 0, giterrors.Wrap(giterrors.IOError, "write executable file "+target, err)
		}
	case modeRegular:
		if err := os.WriteFile(target, obj.Blob.Data, 0o644); err != nil {
			return 0, giterrors.Wrap(giterrors.IOError, "write file "+target, err)
		}
	default:
		return 0, giterrors.New(giterrors.MalformedObject, "unsupported tree entry mode for "+target)
	}
	return 1, nil
}
