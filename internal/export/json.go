package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/iksnae/copilot-archive/internal"
)

// JSONExporter exports sessions in JSON format (pretty-printed)
type JSONExporter struct{}

// Export exports a session to JSON format
func (e *JSONExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(session)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}

// Envelope is the multi-session interchange document. Import reads the
// same shape back.
type Envelope struct {
	Tool       string          `json:"tool"`
	ExportedAt string          `json:"exported_at"`
	Sessions   []SessionRecord `json:"sessions"`
}

// SessionRecord carries one session plus, optionally, the raw artifact
// bytes and their form so an import can restore the archive losslessly.
// RawJSON is base64 on the wire.
type SessionRecord struct {
	internal.Session
	ArtifactForm string `json:"artifact_form,omitempty"`
	RawJSON      []byte `json:"raw_json,omitempty"`
}

// WriteEnvelope writes sessions as one importable JSON document.
func WriteEnvelope(w io.Writer, records []SessionRecord) error {
	env := Envelope{
		Tool:       "copilot-archive",
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Sessions:   records,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ReadEnvelope decodes an export document. A bare JSON array of session
// records and a single exported session are accepted too.
func ReadEnvelope(data []byte) ([]SessionRecord, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []SessionRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to decode session list: %w", err)
		}
		return records, nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode export document: %w", err)
	}
	if len(env.Sessions) == 0 {
		var record SessionRecord
		if err := json.Unmarshal(data, &record); err == nil && record.SessionID != "" {
			return []SessionRecord{record}, nil
		}
	}
	return env.Sessions, nil
}
