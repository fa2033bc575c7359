// Package storage defines the workspace file-system abstraction.
package storage

import "github.com/starford/gtmkit/internal/models"

// Provider is the interface for workspace file operations. All paths are
// relative to the workspace root.
type Provider interface {
	// List returns metadata for every file under dir whose name ends in ext
	// (all files when ext is empty).
	List(dir, ext string) ([]models.FileMeta, error)
	// Dirs returns the names of the immediate subdirectories of dir.
	Dirs(dir string) ([]string, error)
	// Stat returns metadata without a checksum. Missing files yield an error
	// matching os.ErrNotExist.
	Stat(path string) (models.FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Copy duplicates src to dst, keeping the source modification time.
	// A missing src yields an error matching os.ErrNotExist.
	Copy(src, dst string) error
	// Abs resolves path to an absolute file-system path inside the root.
	Abs(path string) (string, error)
}
