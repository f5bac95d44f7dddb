package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Source yields the raw snapshot document.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads a snapshot from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", s.Path, err)
	}
	return f, nil
}

func (s FileSource) String() string { return "file:" + s.Path }

// BlobSource reads a snapshot from object storage. A Key ending in "/" is
// a prefix: the most recently modified object under it is read.
type BlobSource struct {
	Reader domain.BlobReader
	Key    string
}

func (s BlobSource) Open(ctx context.Context) (io.ReadCloser, error) {
	key := s.Key
	if strings.HasSuffix(key, "/") {
		latest, err := s.latest(ctx)
		if err != nil {
			return nil, err
		}
		key = latest
	}
	rc, err := s.Reader.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("snapshot: get %s: %w", key, err)
	}
	return rc, nil
}

// latest picks the newest object under the prefix; equal timestamps fall
// back to the lexically greatest key.
func (s BlobSource) latest(ctx context.Context) (string, error) {
	infos, err := s.Reader.List(ctx, s.Key)
	if err != nil {
		return "", fmt.Errorf("snapshot: list %s: %w", s.Key, err)
	}
	var best domain.BlobInfo
	for _, info := range infos {
		if strings.HasSuffix(info.Path, "/") {
			continue
		}
		if best.Path == "" || info.LastModified.After(best.LastModified) ||
			(info.LastModified.Equal(best.LastModified) && info.Path > best.Path) {
			best = info
		}
	}
	if best.Path == "" {
		return "", fmt.Errorf("snapshot: no objects under %s: %w", s.Key, domain.ErrNotFound)
	}
	return best.Path, nil
}

func (s BlobSource) String() string { return "s3:" + s.Key }

// Load opens src and decodes the snapshot.
func Load(ctx context.Context, src Source) (Snapshot, Report, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return Snapshot{}, Report{}, err
	}
	defer rc.Close()
	return Decode(rc)
}

// WriteResultsFile writes doc to path, creating parent directories.
func WriteResultsFile(path string, doc Results) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot: write results: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := EncodeResults(&buf, doc); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("snapshot: write results: %w", err)
	}
	return nil
}

// ReadResultsFile reads a results document from path.
func ReadResultsFile(path string) (Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return Results{}, fmt.Errorf("snapshot: read results: %w", err)
	}
	defer f.Close()
	return DecodeResults(f)
}

// UploadResults stores doc under key.
func UploadResults(ctx context.Context, w domain.BlobWriter, key string, doc Results) error {
	var buf bytes.Buffer
	if err := EncodeResults(&buf, doc); err != nil {
		return err
	}
	if err := w.Put(ctx, key, &buf, "application/json"); err != nil {
		return fmt.Errorf("snapshot: upload results: %w", err)
	}
	return nil
}
