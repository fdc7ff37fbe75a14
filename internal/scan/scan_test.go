package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/store"
	"github.com/iksnae/copilot-archive/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openScanStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(testutil.CreateTempDir(t), "archive.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func editorRoots(t *testing.T) []internal.StorageRoot {
	t.Helper()
	return []internal.StorageRoot{
		{Path: testutil.CreateMockEditorRoot(t), Kind: internal.SourceEditorStable},
	}
}

func TestRun_EditorRoot(t *testing.T) {
	st := openScanStore(t)
	ctx := context.Background()

	report, err := Run(ctx, st, Options{Roots: editorRoots(t)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// One snapshot file plus the workspace state database.
	if report.Artifacts != 2 {
		t.Errorf("Artifacts = %d, want 2", report.Artifacts)
	}
	if report.Added != 2 || report.Errors != 0 {
		t.Errorf("counts = %+v", report.ScanCounts)
	}
	if report.Sessions() != 2 {
		t.Errorf("Sessions() = %d, want 2", report.Sessions())
	}
	if report.ScanID == "" {
		t.Error("report has no scan id")
	}

	ids, err := st.SessionIDs(ctx)
	if err != nil {
		t.Fatalf("SessionIDs() error = %v", err)
	}
	want := []string{"11111111-2222-3333-4444-555555555555", "66666666-7777-8888-9999-000000000000"}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("SessionIDs() = %v, want %v", ids, want)
	}

	sess, err := st.GetSession(ctx, want[0])
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.WorkspaceName != "project" || sess.SourceKind != internal.SourceEditorStable {
		t.Errorf("session = %+v", sess)
	}
	if len(sess.Messages) == 0 {
		t.Error("scanned session has no messages")
	}
}

func TestRun_SecondScanSkipsUnchanged(t *testing.T) {
	st := openScanStore(t)
	ctx := context.Background()
	roots := editorRoots(t)

	if _, err := Run(ctx, st, Options{Roots: roots}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	report, err := Run(ctx, st, Options{Roots: roots})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.Added != 0 || report.Updated != 0 {
		t.Errorf("second scan wrote sessions: %+v", report.ScanCounts)
	}
	if report.Unchanged != 2 {
		t.Errorf("Unchanged = %d, want 2", report.Unchanged)
	}
}

func TestRun_FullRescanRewrites(t *testing.T) {
	st := openScanStore(t)
	ctx := context.Background()
	roots := editorRoots(t)

	if _, err := Run(ctx, st, Options{Roots: roots}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	report, err := Run(ctx, st, Options{Roots: roots, Full: true})
	if err != nil {
		t.Fatalf("full Run() error = %v", err)
	}
	if report.Updated != 2 || report.Added != 0 {
		t.Errorf("full rescan counts = %+v", report.ScanCounts)
	}
}

func TestRun_CLIRoot(t *testing.T) {
	st := openScanStore(t)
	ctx := context.Background()
	roots := []internal.StorageRoot{
		{Path: testutil.CreateMockCLIRoot(t), Kind: internal.SourceCLICurrent},
	}

	report, err := Run(ctx, st, Options{Roots: roots})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Added != 1 {
		t.Fatalf("Added = %d, want 1", report.Added)
	}

	sess, err := st.GetSession(ctx, "cli-0001")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.SourceKind != internal.SourceCLICurrent {
		t.Errorf("SourceKind = %q", sess.SourceKind)
	}
	if sess.CustomTitle != "Rename config struct" {
		t.Errorf("CustomTitle = %q, want the workspace.yaml summary", sess.CustomTitle)
	}
	if len(sess.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(sess.Messages))
	}
}

func TestRun_DuplicateSessionKeepsNewest(t *testing.T) {
	st := openScanStore(t)
	ctx := context.Background()

	tmpDir := testutil.CreateTempDir(t)
	workspaceDir := testutil.CreateWorkspaceFixture(t, tmpDir, "11112222aaaabbbb", "file:///home/dev/project")

	older := testutil.WriteSnapshotFixture(t, workspaceDir, "duplicated",
		testutil.SnapshotSessionDoc("duplicated"))
	olderCopy := filepath.Join(workspaceDir, "chatSessions", "copy.json")
	data, err := os.ReadFile(older)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if err := os.WriteFile(olderCopy, data, 0o644); err != nil {
		t.Fatalf("write copy: %v", err)
	}

	past := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("backdate fixture: %v", err)
	}

	roots := []internal.StorageRoot{
		{Path: filepath.Join(tmpDir, "workspaceStorage"), Kind: internal.SourceEditorStable},
	}
	report, err := Run(ctx, st, Options{Roots: roots})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Added != 1 {
		t.Errorf("Added = %d, want 1", report.Added)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}

	var dup *FileOutcome
	for i := range report.Skips {
		if strings.Contains(report.Skips[i].Detail, "duplicate session") {
			dup = &report.Skips[i]
		}
	}
	if dup == nil {
		t.Fatalf("no duplicate outcome in %+v", report.Skips)
	}
	if dup.Path != older {
		t.Errorf("loser = %q, want the older file %q", dup.Path, older)
	}

	ids, err := st.SessionIDs(ctx)
	if err != nil {
		t.Fatalf("SessionIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "duplicated" {
		t.Errorf("SessionIDs() = %v", ids)
	}
}

func TestRun_RecordsScanRun(t *testing.T) {
	st := openScanStore(t)
	ctx := context.Background()

	report, err := Run(ctx, st, Options{Roots: editorRoots(t), Full: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	last, err := st.LastScan(ctx)
	if err != nil {
		t.Fatalf("LastScan() error = %v", err)
	}
	if last == nil || last.ID != report.ScanID {
		t.Fatalf("LastScan() = %+v, want run %s", last, report.ScanID)
	}
	if !last.FullRescan || last.FinishedAt == "" {
		t.Errorf("recorded run = %+v", last)
	}
	if last.ScanCounts != report.ScanCounts {
		t.Errorf("recorded counts = %+v, report = %+v", last.ScanCounts, report.ScanCounts)
	}
}

func TestRun_EmptyRoots(t *testing.T) {
	st := openScanStore(t)

	report, err := Run(context.Background(), st, Options{Roots: []internal.StorageRoot{}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Artifacts != 0 || report.Sessions() != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRun_MissingRootIgnored(t *testing.T) {
	st := openScanStore(t)
	roots := []internal.StorageRoot{
		{Path: filepath.Join(testutil.CreateTempDir(t), "never-created"), Kind: internal.SourceEditorStable},
	}

	report, err := Run(context.Background(), st, Options{Roots: roots})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Artifacts != 0 || report.Errors != 0 {
		t.Errorf("report = %+v", report)
	}
}
