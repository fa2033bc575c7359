// Package models defines the file-level types shared by storage and sync.
package models

import "time"

// FileMeta describes a file in the workspace.
type FileMeta struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum,omitempty"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}
