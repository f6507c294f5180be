// Package blobstore stores uploaded voice recordings. Files live flat in one
// directory under date-prefixed UUID names and are referenced from the
// database by a relative path such as "uploads/recordings/20260301_<uuid>.wav".
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrBlobNotFound matches fs.ErrNotExist so storage error mapping treats
	// both backends alike.
	ErrBlobNotFound       = fmt.Errorf("recording file not found: %w", fs.ErrNotExist)
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrUnsupportedFormat  = errors.New("audio format is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrNotLocal           = errors.New("blob store has no local file paths")
	ErrInvalidBlobRefPath = errors.New("invalid recording path")
)

// DefaultMaxFileSize is the upload limit when none is configured (10 MB).
const DefaultMaxFileSize = 10 << 20

// RelativePrefix is the directory recorded in database rows.
const RelativePrefix = "uploads/recordings"

// AllowedExtensions lists the accepted recording containers.
var AllowedExtensions = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".m4a": "audio/mp4",
	".aac": "audio/aac",
}

// ContentTypeFor returns the MIME type for a stored recording name.
func ContentTypeFor(name string) string {
	if ct, ok := AllowedExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Object describes a stored recording file.
type Object struct {
	Name      string    `json:"name"`
	RelPath   string    `json:"relPath"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
}

// BlobStore is implemented by LocalStore and InMemoryBlobStore.
type BlobStore interface {
	Save(ctx context.Context, originalName string, content io.Reader) (*Object, error)
	Open(ctx context.Context, relPath string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, relPath string) error
	// LocalPath resolves relPath to a file an external tool can read.
	LocalPath(relPath string) (string, error)
}

// objectName maps a stored relative path, or a legacy absolute path, to the
// flat file name inside the store. Directory components are discarded so a
// crafted path cannot escape the store root.
func objectName(relPath string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(relPath), `\`, "/")
	name := path.Base(p)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "", ErrInvalidBlobRefPath
	}
	return name, nil
}

// newObjectName builds YYYYMMDD_<uuid><ext> for an upload.
func newObjectName(now time.Time, originalName string) (string, error) {
	if strings.TrimSpace(originalName) == "" {
		return "", ErrMissingFileName
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := AllowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return fmt.Sprintf("%s_%s%s", now.UTC().Format("20060102"), uuid.New().String(), ext), nil
}

func relPathFor(name string) string {
	return RelativePrefix + "/" + name
}

// ---------------------------------------------------------------------------
// Local disk implementation
// ---------------------------------------------------------------------------

// LocalStore keeps recordings in a single directory on disk.
type LocalStore struct {
	root    string
	maxSize int64
	now     func() time.Time
}

// NewLocalStore creates root if needed. maxSize <= 0 selects DefaultMaxFileSize.
func NewLocalStore(root string, maxSize int64) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("recordings directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create recordings directory: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &LocalStore{root: root, maxSize: maxSize, now: time.Now}, nil
}

// Save streams content to a temp file in root and renames it into place, so
// a failed or oversized upload never leaves a partial recording behind.
func (s *LocalStore) Save(_ context.Context, originalName string, content io.Reader) (*Object, error) {
	now := s.now()
	name, err := newObjectName(now, originalName)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(content, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write recording: %w", err)
	}
	if n > s.maxSize {
		return nil, ErrFileTooLarge
	}

	if err := os.Rename(tmpName, filepath.Join(s.root, name)); err != nil {
		return nil, fmt.Errorf("store recording: %w", err)
	}
	committed = true

	return &Object{
		Name:      name,
		RelPath:   relPathFor(name),
		Size:      n,
		Hash:      fmt.Sprintf("%x", h.Sum(nil)),
		CreatedAt: now.UTC(),
	}, nil
}

func (s *LocalStore) LocalPath(relPath string) (string, error) {
	name, err := objectName(relPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

func (s *LocalStore) Open(_ context.Context, relPath string) (io.ReadCloser, *Object, error) {
	p, err := s.LocalPath(relPath)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, nil, fmt.Errorf("open recording: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat recording: %w", err)
	}
	name := filepath.Base(p)
	return f, &Object{Name: name, RelPath: relPathFor(name), Size: info.Size(), CreatedAt: info.ModTime().UTC()}, nil
}

// Delete removes a recording. A missing file is not an error.
func (s *LocalStore) Delete(_ context.Context, relPath string) error {
	p, err := s.LocalPath(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete recording: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	object  Object
	content []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for tests.
type InMemoryBlobStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs:   make(map[string]*storedBlob),
		maxSize: DefaultMaxFileSize,
	}
}

func (s *InMemoryBlobStore) Save(_ context.Context, originalName string, content io.Reader) (*Object, error) {
	now := time.Now()
	name, err := newObjectName(now, originalName)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	obj := Object{
		Name:      name,
		RelPath:   relPathFor(name),
		Size:      int64(len(data)),
		Hash:      fmt.Sprintf("%x", h),
		CreatedAt: now.UTC(),
	}

	s.mu.Lock()
	s.blobs[name] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	out := obj // copy
	return &out, nil
}

func (s *InMemoryBlobStore) Open(_ context.Context, relPath string) (io.ReadCloser, *Object, error) {
	name, err := objectName(relPath)
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	blob, ok := s.blobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	obj := blob.object // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &obj, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, relPath string) error {
	name, err := objectName(relPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.blobs, name)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryBlobStore) LocalPath(string) (string, error) {
	return "", ErrNotLocal
}

// Len reports how many blobs are stored.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
