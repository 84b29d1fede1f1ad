package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// RotatingWriter implements log rotation functionality
type RotatingWriter struct {
	filename   string
	maxSize    int64
	maxAge     time.Duration
	maxBackups int
	compress   bool
	file       *os.File
	size       int64
	mu         sync.Mutex
	lastRotate time.Time
}

// NewRotatingWriter creates a new rotating writer
func NewRotatingWriter(filename string, maxSize int64, maxAge time.Duration, maxBackups int, compress bool) (*RotatingWriter, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %v", err)
	}

	// Open or create the log file
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %v", err)
	}

	// Get current file size
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat log file: %v", err)
	}

	return &RotatingWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxAge:     maxAge,
		maxBackups: maxBackups,
		compress:   compress,
		file:       file,
		size:       stat.Size(),
		lastRotate: time.Now(),
	}, nil
}

// Write implements io.Writer interface
func (rw *RotatingWriter) Write(p []byte) (n int, err error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.needsRotation() {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %v", err)
		}
	}

	n, err = rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Sync flushes the current file; zap calls it through zapcore.AddSync.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close closes the rotating writer
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file != nil {
		err := rw.file.Close()
		rw.file = nil
		return err
	}
	return nil
}

// needsRotation checks if log rotation is needed
func (rw *RotatingWriter) needsRotation() bool {
	if rw.maxSize > 0 && rw.size >= rw.maxSize {
		return true
	}
	if rw.maxAge > 0 && time.Since(rw.lastRotate) >= rw.maxAge {
		return true
	}
	return false
}

// rotate performs log rotation
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close current file: %v", err)
	}

	// Nanoseconds keep names unique when rotating faster than once a second.
	timestamp := time.Now().Format("2006-01-02-15-04-05.000000000")
	rotatedFilename := fmt.Sprintf("%s.%s", rw.filename, timestamp)

	if err := os.Rename(rw.filename, rotatedFilename); err != nil {
		return fmt.Errorf("rename log file: %v", err)
	}

	if rw.compress {
		if err := compressFile(rotatedFilename); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to compress log file %s: %v\n", rotatedFilename, err)
		}
	}

	if err := rw.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to cleanup old backups: %v\n", err)
	}

	file, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("create new log file: %v", err)
	}

	rw.file = file
	rw.size = 0
	rw.lastRotate = time.Now()
	return nil
}

// compressFile gzips filename into filename.gz and removes the original
func compressFile(filename string) error {
	srcFile, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open source file: %v", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(filename + ".gz")
	if err != nil {
		return fmt.Errorf("create compressed file: %v", err)
	}
	defer dstFile.Close()

	gzWriter := gzip.NewWriter(dstFile)
	if _, err := io.Copy(gzWriter, srcFile); err != nil {
		_ = gzWriter.Close()
		return fmt.Errorf("compress file: %v", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %v", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("close compressed file: %v", err)
	}
	_ = srcFile.Close()

	if err := os.Remove(filename); err != nil {
		return fmt.Errorf("remove original file: %v", err)
	}
	return nil
}

// cleanupOldBackups removes old backup files
func (rw *RotatingWriter) cleanupOldBackups() error {
	if rw.maxBackups <= 0 {
		return nil
	}

	dir := filepath.Dir(rw.filename)
	base := filepath.Base(rw.filename)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %v", err)
	}

	var backupFiles []backupFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, base+".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backupFiles = append(backupFiles, backupFile{
			name:    filepath.Join(dir, name),
			modTime: info.ModTime(),
		})
	}

	// Oldest first; names carry the timestamp so they break ties.
	sort.Slice(backupFiles, func(i, j int) bool {
		if backupFiles[i].modTime.Equal(backupFiles[j].modTime) {
			return backupFiles[i].name < backupFiles[j].name
		}
		return backupFiles[i].modTime.Before(backupFiles[j].modTime)
	})

	if len(backupFiles) > rw.maxBackups {
		for _, backup := range backupFiles[:len(backupFiles)-rw.maxBackups] {
			if err := os.Remove(backup.name); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to remove old backup %s: %v\n", backup.name, err)
			}
		}
	}
	return nil
}

// backupFile represents a backup file with its modification time
type backupFile struct {
	name    string
	modTime time.Time
}

// CreateRotatingWriterFromConfig creates a rotating writer from LogConfig
func CreateRotatingWriterFromConfig(config *LogConfig) (io.Writer, error) {
	if config.Rotation == nil {
		return parseOutput(config.Output)
	}

	maxSize, err := parseSize(config.Rotation.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("parse max size: %v", err)
	}
	maxAge, err := parseDuration(config.Rotation.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("parse max age: %v", err)
	}

	filename := "ytjsc.log"
	if strings.HasPrefix(config.Output, "file:") {
		filename = strings.TrimPrefix(config.Output, "file:")
	}

	return NewRotatingWriter(
		filename,
		maxSize,
		maxAge,
		config.Rotation.MaxBackups,
		config.Rotation.Compress,
	)
}
