package scan

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/export"
	"github.com/iksnae/copilot-archive/internal/store"
)

// ImportReport is the outcome of one import run.
type ImportReport struct {
	Read    int
	Added   int
	Updated int
	Errors  int
	Failed  []string
}

// Import reads an export document and writes its sessions into the
// archive. Records that travelled with their original raw bytes restore
// those bytes verbatim; the rest archive the normalized document
// itself, which re-parses losslessly on rebuild.
func Import(ctx context.Context, st *store.Store, path string) (*ImportReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records, err := export.ReadEnvelope(data)
	if err != nil {
		return nil, err
	}

	if err := st.Lock(); err != nil {
		return nil, err
	}
	defer st.Unlock()

	report := &ImportReport{Read: len(records)}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rec := &records[i]
		sess := &rec.Session
		if sess.SessionID == "" {
			report.Errors++
			report.Failed = append(report.Failed, fmt.Sprintf("record %d", i))
			continue
		}

		raw := rec.RawJSON
		form := internal.ArtifactForm(rec.ArtifactForm)
		if len(raw) == 0 || form == "" {
			encoded, err := json.Marshal(sess)
			if err != nil {
				report.Errors++
				report.Failed = append(report.Failed, sess.SessionID)
				continue
			}
			raw = encoded
			form = internal.FormImport
		}

		added, err := st.Ingest(ctx, sess, raw, form)
		if err != nil {
			report.Errors++
			report.Failed = append(report.Failed, sess.SessionID)
			log.Debug().Str("session", sess.SessionID).Err(err).Msg("import failed")
			continue
		}
		if added {
			report.Added++
		} else {
			report.Updated++
		}
	}
	return report, nil
}
