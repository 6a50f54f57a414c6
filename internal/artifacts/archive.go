// Package artifacts stores rendered screenshots on disk, zstd-compressed,
// keyed by run and attempt. Keeping image bytes out of sqlite keeps the
// run table small while screenshots stay retrievable for review.
package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Archive struct {
	dir string
}

func New(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Save compresses and writes a screenshot, returning its storage key.
func (a *Archive) Save(runID string, targetIdx, attempt int, png []byte) (string, error) {
	key := fmt.Sprintf("%s-t%d-a%d.png.zst", runID, targetIdx, attempt)
	path := filepath.Join(a.dir, key)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := zw.Write(png); err != nil {
		zw.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	return key, nil
}

// Load reads a previously saved screenshot back into memory.
func (a *Archive) Load(key string) ([]byte, error) {
	f, err := os.Open(filepath.Join(a.dir, key))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// Delete removes a stored screenshot; missing keys are not an error.
func (a *Archive) Delete(key string) error {
	err := os.Remove(filepath.Join(a.dir, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}
