package model

import (
	"encoding/json"
	"time"
)

// Record is one stored version of a resolved model in the catalog.
type Record struct {
	ID         string          `json:"id"`
	NS         string          `json:"ns"`
	Name       string          `json:"name"`
	Tags       []string        `json:"tags,omitempty"`
	Version    int             `json:"version"`
	Supersedes string          `json:"supersedes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
	Meta       string          `json:"meta,omitempty"`
	Segments   int             `json:"segments"`
	Muscles    int             `json:"muscles"`
	DOF        int             `json:"dof"`
	Model      json.RawMessage `json:"model,omitempty"`
	BioMod     string          `json:"biomod,omitempty"`
	ChunkCount int             `json:"chunks,omitempty"`
}

// Decode rebuilds the stored model.
func (r *Record) Decode() (*Model, error) {
	m := New()
	if err := json.Unmarshal(r.Model, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Chunk is one indexed bioMod block of a record.
type Chunk struct {
	ID        string `json:"id"`
	RecordID  string `json:"record_id"`
	Seq       int    `json:"seq"`
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	Text      string `json:"text"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// ValidRelations are the link kinds between catalog records.
var ValidRelations = map[string]bool{
	"derived_from": true,
	"variant_of":   true,
	"refines":      true,
	"depends_on":   true,
}
