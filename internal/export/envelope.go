package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cashplan/internal/core"
	"cashplan/internal/store"
)

// Version is the current export envelope version.
const Version = "1"

// ErrUnsupportedVersion is returned when importing an envelope written
// by an incompatible exporter.
var ErrUnsupportedVersion = errors.New("unsupported export version")

// Envelope wraps a full project document for import/export. Import
// replaces the in-memory project wholesale; there is no field-level
// merge.
type Envelope struct {
	ProjectData store.Document `json:"projectData"`
	ExportDate  time.Time      `json:"exportDate"`
	Version     string         `json:"version"`
	ExportedBy  string         `json:"exportedBy"`
}

// NewEnvelope wraps doc for export, stamped with the acting user.
func NewEnvelope(doc store.Document, exportedBy string) Envelope {
	return Envelope{
		ProjectData: doc,
		ExportDate:  time.Now().UTC(),
		Version:     Version,
		ExportedBy:  exportedBy,
	}
}

// Marshal serializes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// ParseEnvelope decodes and checks an import payload.
func ParseEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode export envelope: %w", err)
	}
	if e.Version != Version {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, e.Version)
	}
	return e, nil
}

// SummaryWriter pushes a project's planned-vs-actual summary to an
// external destination, such as a spreadsheet dashboard.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, p core.Project) error
}
