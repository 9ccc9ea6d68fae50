package model

import "time"

// Document represents a stored PDF in the system.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
//
// Filename is the generated, collision-free name the blob is stored under.
// OriginalName is whatever the client called the file and is used only for
// display and download headers. Filesize is the byte count measured at upload
// time and is authoritative; it is not re-checked against the blob on read.
type Document struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Filepath     string    `json:"filepath"`
	Filesize     int64     `json:"filesize"`
	CreatedAt    time.Time `json:"created_at"`
}
