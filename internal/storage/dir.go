package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/matzegebbe/replicator/internal/failure"
)

// Dir is a Store that writes objects below a local directory. It is used for
// offline runs where the tree is later synced by other tooling.
type Dir struct {
	Root      string
	Prefix    string
	PublicURL string
	Logger    logr.Logger
}

// path maps key below Root. Keys resolving outside Root are rejected.
func (d *Dir) path(key string) (string, error) {
	root := filepath.Clean(d.Root)
	p := filepath.Join(root, filepath.FromSlash(JoinKey(d.Prefix, key)))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &failure.TransferError{Op: "store", Target: key, Err: fmt.Errorf("key resolves outside %s", root)}
	}
	return p, nil
}

func (d *Dir) Put(_ context.Context, key string, body []byte) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	d.Logger.V(1).Info("stored object", "path", p)
	return nil
}

func (d *Dir) PutFile(_ context.Context, key, src string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	d.Logger.V(1).Info("stored object", "path", p)
	return nil
}

func (d *Dir) URL(key string) string {
	return strings.TrimRight(d.PublicURL, "/") + "/" + JoinKey(d.Prefix, key)
}
