package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// BlobStore is the interface for ciphertext blob storage backends.
// Blobs are opaque bytes; the store never inspects or decodes them.
type BlobStore interface {
	// Save writes a blob and returns its size and hex BLAKE2b-256 digest,
	// computed while writing. A partially written blob is removed on error.
	Save(ref string, data io.Reader) (int64, string, error)
	// Open returns a read handle and the blob size. The handle stays
	// readable even if the blob is deleted while a response streams from it.
	Open(ref string) (io.ReadCloser, int64, error)
	// Exists reports the blob size, or an error when the blob is missing.
	Exists(ref string) (int64, error)
	// Delete removes a blob. Removing an absent blob is not an error.
	Delete(ref string) error
	EnsureDir() error
}

// FileSystemStore stores ciphertext blobs on the local filesystem.
type FileSystemStore struct {
	basePath string
}

var _ BlobStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0o700); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data to {ref}.sealed, hashing as it goes.
func (fs *FileSystemStore) Save(ref string, data io.Reader) (int64, string, error) {
	blobPath := fs.blobPath(ref)

	file, err := os.OpenFile(blobPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create blob %s: %w", blobPath, err)
	}
	defer file.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to initialize digest: %w", err)
	}

	n, err := io.Copy(io.MultiWriter(file, hasher), data)
	if err != nil {
		// Clean up partial blob on error
		os.Remove(blobPath)
		return 0, "", fmt.Errorf("failed to write blob: %w", err)
	}

	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Open returns a handle to a stored blob and its current size.
func (fs *FileSystemStore) Open(ref string) (io.ReadCloser, int64, error) {
	blobPath := fs.blobPath(ref)

	file, err := os.Open(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("blob not found for ref %s", ref)
		}
		return nil, 0, fmt.Errorf("failed to open blob: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat blob: %w", err)
	}

	return file, info.Size(), nil
}

// Exists reports the size of a stored blob, or an error if it is gone.
func (fs *FileSystemStore) Exists(ref string) (int64, error) {
	info, err := os.Stat(fs.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("blob not found for ref %s", ref)
		}
		return 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Size(), nil
}

// Delete removes the stored blob for a share.
func (fs *FileSystemStore) Delete(ref string) error {
	blobPath := fs.blobPath(ref)
	if err := os.Remove(blobPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", blobPath, err)
	}
	return nil
}

func (fs *FileSystemStore) blobPath(ref string) string {
	return filepath.Join(fs.basePath, ref+".sealed")
}
