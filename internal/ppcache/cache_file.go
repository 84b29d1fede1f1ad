package ppcache

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/bytedance/sonic"

	"github.com/ytget/ytjsc/internal/logger"
)

// FileCache stores preprocessed players on disk, one brotli-compressed JSON
// file per key. Expired or unreadable entries are treated as missing and
// removed.
type FileCache struct {
	rootDir string
	mu      sync.RWMutex
}

// NewFileCache creates a file-backed cache under rootDir.
// The directory will be created if it does not exist.
func NewFileCache(rootDir string) (*FileCache, error) {
	if rootDir == "" {
		return nil, errors.New("rootDir is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{rootDir: rootDir}, nil
}

func (c *FileCache) filenameForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := fmt.Sprintf("%x.json.br", sum[:])
	return filepath.Join(c.rootDir, name)
}

type fileEntry struct {
	Preprocessed string    `json:"preprocessed_player"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (c *FileCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	fn := c.filenameForKey(key)
	b, err := os.ReadFile(fn)
	c.mu.RUnlock()
	if err != nil {
		return Entry{}, false
	}

	e, err := decodeEntry(b)
	if err != nil {
		logger.WithComponent(logger.ComponentCache).Warn("dropping corrupt cache entry", map[string]interface{}{
			"file":  fn,
			"error": err,
		})
		c.remove(fn)
		return Entry{}, false
	}
	out := Entry{Preprocessed: e.Preprocessed, ExpiresAt: e.ExpiresAt}
	if out.Expired(time.Now()) {
		c.remove(fn)
		return Entry{}, false
	}
	return out, true
}

func (c *FileCache) Set(key string, value Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn := c.filenameForKey(key)
	b, err := encodeEntry(fileEntry{Preprocessed: value.Preprocessed, ExpiresAt: value.ExpiresAt})
	if err != nil {
		logger.WithComponent(logger.ComponentCache).Warn("encode cache entry", map[string]interface{}{"error": err})
		return
	}
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, b, fs.FileMode(0o644)); err != nil {
		logger.WithComponent(logger.ComponentCache).Warn("write cache entry", map[string]interface{}{
			"file":  tmp,
			"error": err,
		})
		return
	}
	_ = os.Rename(tmp, fn)
}

// Delete removes the entry file for key, if any.
func (c *FileCache) Delete(key string) {
	c.remove(c.filenameForKey(key))
}

func (c *FileCache) remove(fn string) {
	c.mu.Lock()
	_ = os.Remove(fn)
	c.mu.Unlock()
}

func encodeEntry(e fileEntry) ([]byte, error) {
	raw, err := sonic.Marshal(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(b []byte) (fileEntry, error) {
	var e fileEntry
	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(b)))
	if err != nil {
		return e, err
	}
	err = sonic.Unmarshal(raw, &e)
	return e, err
}
