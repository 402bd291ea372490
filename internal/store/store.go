// Package store provides the model catalog interface and its SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/model"
)

// ErrNotFound is returned when no live record matches a namespace and name.
var ErrNotFound = errors.New("record not found")

// ErrInvalidMeta is returned when record metadata is not a JSON document.
var ErrInvalidMeta = errors.New("meta is not valid JSON")

// PutParams holds parameters for storing a model.
type PutParams struct {
	NS     string
	Name   string
	Source biomod.Source
	Header biomod.Header
	Tags   []string
	Meta   string
}

// GetParams holds parameters for retrieving a record.
type GetParams struct {
	NS      string
	Name    string
	History bool
	Version int // 0 means latest
}

// ListParams holds parameters for listing records.
type ListParams struct {
	NS    string
	Tags  []string
	Limit int
}

// RmParams holds parameters for deleting a record.
type RmParams struct {
	NS          string
	Name        string
	AllVersions bool
	Hard        bool
}

// Store defines the model catalog interface.
type Store interface {
	// Put resolves the source, renders it and stores it as a new version.
	Put(ctx context.Context, p PutParams) (*model.Record, error)

	// Get retrieves a record by namespace and name, with its payload.
	// Returns a slice (single element normally, multiple with History=true).
	Get(ctx context.Context, p GetParams) ([]model.Record, error)

	// List lists the latest version of matching records, without payload.
	List(ctx context.Context, p ListParams) ([]model.Record, error)

	// Rm soft-deletes (or hard-deletes) a record.
	Rm(ctx context.Context, p RmParams) error

	// Close closes the store.
	Close() error
}
