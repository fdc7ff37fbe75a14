package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/store"
)

// Options control one scan run.
type Options struct {
	Roots       []internal.StorageRoot // defaults to the detected roots
	Full        bool                   // rewrite sessions even when fingerprints match
	Concurrency int                    // parallel parse workers
	Timeout     time.Duration          // per-artifact parse deadline
}

// FileOutcome is one recorded non-write outcome: a skip, a duplicate
// loss, or a parse failure.
type FileOutcome struct {
	Path   string
	Status string
	Detail string
}

// Report is the outcome of one scan run.
type Report struct {
	ScanID    string
	Artifacts int
	store.ScanCounts
	Skips        []FileOutcome
	UnknownKinds []string
}

// Sessions returns the number of sessions written this run.
func (r *Report) Sessions() int {
	return r.Added + r.Updated
}

type candidate struct {
	art internal.Artifact
	ps  internal.ParsedSession
}

type parseOutcome struct {
	art      internal.Artifact
	sessions []internal.ParsedSession
	stats    internal.ParseStats
	err      error
}

// Run discovers artifacts under the roots, parses what changed, and
// writes the results. The store's write lock is held for the whole run;
// individual artifact failures are recorded, never fatal.
func Run(ctx context.Context, st *store.Store, opts Options) (*Report, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	roots := opts.Roots
	if roots == nil {
		detected, err := internal.DetectStorageRoots()
		if err != nil {
			return nil, err
		}
		roots = detected
	}

	if err := st.Lock(); err != nil {
		return nil, err
	}
	defer st.Unlock()

	artifacts, discoverySkips := internal.DiscoverArtifacts(roots)
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })

	report := &Report{Artifacts: len(artifacts)}
	scanID, err := st.BeginScan(ctx, opts.Full)
	if err != nil {
		return nil, err
	}
	report.ScanID = scanID

	audit := func(path, status, detail string) {
		if err := st.RecordScanFile(ctx, scanID, path, status, detail); err != nil {
			log.Debug().Str("path", path).Err(err).Msg("audit row failed")
		}
	}
	skip := func(path, status, detail string) {
		report.Skips = append(report.Skips, FileOutcome{Path: path, Status: status, Detail: detail})
		audit(path, status, detail)
	}

	for _, ds := range discoverySkips {
		report.Skipped++
		skip(ds.Path, "skipped", ds.Reason)
	}

	pending, err := filterUnchanged(ctx, st, artifacts, opts.Full, report, audit)
	if err != nil {
		return nil, err
	}

	outcomes, err := parseAll(ctx, pending, opts)
	if err != nil {
		return nil, err
	}

	winners, order := resolveDuplicates(outcomes, report, skip)
	if err := ingestAll(ctx, st, winners, order, opts.Full, report, skip, audit); err != nil {
		return nil, err
	}

	for _, out := range outcomes {
		mergeUnknownKinds(report, out.stats.UnknownKinds)
	}
	sort.Strings(report.UnknownKinds)

	if err := st.FinishScan(ctx, scanID, report.ScanCounts); err != nil {
		return nil, err
	}
	return report, nil
}

// filterUnchanged drops artifacts whose stored fingerprints still match
// so they are never re-read or re-parsed.
func filterUnchanged(ctx context.Context, st *store.Store, artifacts []internal.Artifact, full bool, report *Report, audit func(path, status, detail string)) ([]internal.Artifact, error) {
	if full {
		return artifacts, nil
	}
	var pending []internal.Artifact
	for _, art := range artifacts {
		state, err := st.CheckArtifact(ctx, art.Path, art.Mtime, art.Size)
		if err != nil {
			return nil, err
		}
		if state == store.ArtifactUnchanged {
			report.Unchanged++
			audit(art.Path, "unchanged", "")
			continue
		}
		pending = append(pending, art)
	}
	return pending, nil
}

// parseAll parses the pending artifacts concurrently. Each artifact
// gets its own timeout; only run-level cancellation aborts the group.
func parseAll(ctx context.Context, pending []internal.Artifact, opts Options) ([]parseOutcome, error) {
	outcomes := make([]parseOutcome, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, art := range pending {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, opts.Timeout)
			sessions, stats, err := internal.ParseArtifact(actx, art)
			cancel()
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = parseOutcome{art: art, sessions: sessions, stats: stats, err: err}
			log.Debug().Str("path", art.Path).Int("sessions", len(sessions)).
				Int("skipped", stats.SkippedItems).Err(err).Msg("parsed artifact")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// resolveDuplicates picks one parse per session id: the artifact with
// the newer mtime wins, ties keep the first in path order.
func resolveDuplicates(outcomes []parseOutcome, report *Report, skip func(path, status, detail string)) (map[string]candidate, []string) {
	winners := make(map[string]candidate)
	var order []string
	for _, out := range outcomes {
		if out.err != nil {
			var unsupported *internal.UnsupportedArtifactError
			if errors.As(out.err, &unsupported) {
				report.Skipped++
				skip(out.art.Path, "skipped", out.err.Error())
			} else {
				report.Errors++
				skip(out.art.Path, "error", out.err.Error())
			}
			continue
		}
		if len(out.sessions) == 0 {
			report.Skipped++
			skip(out.art.Path, "skipped", "no sessions found")
			continue
		}
		for _, ps := range out.sessions {
			id := ps.Session.SessionID
			cur, seen := winners[id]
			if !seen {
				winners[id] = candidate{art: out.art, ps: ps}
				order = append(order, id)
				continue
			}
			report.Skipped++
			if out.art.Mtime > cur.art.Mtime {
				dup := &internal.DuplicateSessionError{SessionID: id, Path: cur.art.Path, WinnerPath: out.art.Path}
				skip(cur.art.Path, "skipped", dup.Error())
				winners[id] = candidate{art: out.art, ps: ps}
			} else {
				dup := &internal.DuplicateSessionError{SessionID: id, Path: out.art.Path, WinnerPath: cur.art.Path}
				skip(out.art.Path, "skipped", dup.Error())
			}
		}
	}
	return winners, order
}

// ingestAll writes the winning sessions one transaction each, then
// records a per-file rollup.
func ingestAll(ctx context.Context, st *store.Store, winners map[string]candidate, order []string, full bool, report *Report, skip, audit func(path, status, detail string)) error {
	type tally struct{ added, updated, unchanged, errors int }
	tallies := make(map[string]*tally)
	var paths []string
	bump := func(path string) *tally {
		t, ok := tallies[path]
		if !ok {
			t = &tally{}
			tallies[path] = t
			paths = append(paths, path)
		}
		return t
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		cand := winners[id]
		t := bump(cand.art.Path)

		if !full {
			needed, err := st.NeedsUpdate(ctx, id, cand.art.Mtime, cand.art.Size)
			if err != nil {
				report.Errors++
				t.errors++
				skip(cand.art.Path, "error", err.Error())
				continue
			}
			if !needed {
				report.Unchanged++
				t.unchanged++
				continue
			}
		}

		added, err := st.Ingest(ctx, cand.ps.Session, cand.ps.Raw, cand.art.Form)
		if err != nil {
			report.Errors++
			t.errors++
			skip(cand.art.Path, "error", err.Error())
			continue
		}
		if added {
			report.Added++
			t.added++
		} else {
			report.Updated++
			t.updated++
		}
	}

	for _, path := range paths {
		t := tallies[path]
		status := "unchanged"
		switch {
		case t.errors > 0:
			status = "error"
		case t.added > 0:
			status = "added"
		case t.updated > 0:
			status = "updated"
		}
		audit(path, status, summarize(t.added, t.updated, t.unchanged, t.errors))
	}
	return nil
}

func summarize(added, updated, unchanged, errs int) string {
	var parts []string
	for _, p := range []struct {
		n     int
		label string
	}{{added, "added"}, {updated, "updated"}, {unchanged, "unchanged"}, {errs, "errors"}} {
		if p.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", p.n, p.label))
		}
	}
	return strings.Join(parts, ", ")
}

func mergeUnknownKinds(report *Report, kinds []string) {
	for _, kind := range kinds {
		found := false
		for _, existing := range report.UnknownKinds {
			if existing == kind {
				found = true
				break
			}
		}
		if !found {
			report.UnknownKinds = append(report.UnknownKinds, kind)
		}
	}
}
