package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cashplan/internal/core"
)

// knownDocumentKeys are the top-level fields this version of the schema
// understands. Everything else is carried through Save unchanged.
var knownDocumentKeys = []string{"id", "info", "categories", "scenarios", "currentScenario"}

// Document is a project plus any top-level fields written by other
// schema versions or other tools. Unknown fields survive a load/save
// round-trip (merge-on-write), so an older client never strips data
// written by a newer one.
type Document struct {
	Project core.Project

	// extra holds top-level JSON fields outside the known schema.
	extra map[string]json.RawMessage
}

// NewDocument wraps a project in a document with no extra fields.
func NewDocument(p core.Project) Document {
	return Document{Project: p}
}

func (d *Document) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &d.Project); err != nil {
		return fmt.Errorf("decode project document: %w", err)
	}
	d.Project.Normalize()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode document envelope: %w", err)
	}
	for _, k := range knownDocumentKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		d.extra = nil
		return nil
	}
	d.extra = raw
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(d.Project)
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	if len(d.extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, fmt.Errorf("re-decode project fields: %w", err)
	}
	for k, v := range d.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Encode returns the canonical serialized form of the document.
func (d Document) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDocument parses a serialized document, repairing structural
// gaps via Normalize.
func DecodeDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, err
	}
	return d, nil
}

// Equal compares whole documents by canonical serialized form. This is
// how "changed by another party" is detected at the boundary: the store
// carries no per-field versioning.
func (d Document) Equal(other Document) bool {
	a, err := d.Encode()
	if err != nil {
		return false
	}
	b, err := other.Encode()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Clone returns an independent copy of the document.
func (d Document) Clone() Document {
	data, err := d.Encode()
	if err != nil {
		return Document{Project: core.Project{ID: d.Project.ID}}
	}
	out, err := DecodeDocument(data)
	if err != nil {
		return Document{Project: core.Project{ID: d.Project.ID}}
	}
	return out
}
