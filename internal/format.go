package internal

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ArtifactForm is the parsing protocol an artifact requires.
type ArtifactForm string

const (
	FormSnapshot  ArtifactForm = "snapshot"   // editor full-session JSON document
	FormEditorLog ArtifactForm = "editor-log" // editor JSONL append log
	FormVSCDB     ArtifactForm = "vscdb"      // editor state database
	FormCLIEvents ArtifactForm = "cli-events" // CLI JSONL event stream
	FormImport    ArtifactForm = "import"     // normalized session document from an export
)

// Artifact is one discovered on-disk session source, classified but not
// yet parsed.
type Artifact struct {
	Path      string
	Kind      SourceKind
	Form      ArtifactForm
	Workspace WorkspaceInfo
	Mtime     float64
	Size      int64
}

// SkippedArtifact records a discovered file that was not ingested, with
// the reason preserved for the scan report.
type SkippedArtifact struct {
	Path   string
	Reason string
}

// DiscoverArtifacts walks the storage roots and classifies every
// candidate file. Classification is structural: location, extension,
// and a first-line probe for JSONL. Nothing is fully parsed here, so
// unsupported future formats surface as skips rather than failures.
func DiscoverArtifacts(roots []StorageRoot) ([]Artifact, []SkippedArtifact) {
	var artifacts []Artifact
	var skipped []SkippedArtifact

	for _, root := range roots {
		if !root.Exists() {
			log.Debug().Str("root", root.Path).Msg("storage root not present, skipping")
			continue
		}
		if root.Kind.IsEditor() {
			arts, skips := discoverEditorRoot(root)
			artifacts = append(artifacts, arts...)
			skipped = append(skipped, skips...)
		} else {
			arts, skips := discoverCLIRoot(root)
			artifacts = append(artifacts, arts...)
			skipped = append(skipped, skips...)
		}
	}

	return artifacts, skipped
}

func discoverEditorRoot(root StorageRoot) ([]Artifact, []SkippedArtifact) {
	var artifacts []Artifact
	var skipped []SkippedArtifact

	entries, err := os.ReadDir(root.Path)
	if err != nil {
		return nil, nil
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		workspaceDir := filepath.Join(root.Path, entry.Name())
		ws := ResolveWorkspace(workspaceDir)

		chatDir := filepath.Join(workspaceDir, "chatSessions")
		if chatEntries, err := os.ReadDir(chatDir); err == nil {
			for _, chatEntry := range chatEntries {
				if chatEntry.IsDir() {
					continue
				}
				path := filepath.Join(chatDir, chatEntry.Name())
				art, skip := classifyEditorFile(path, root.Kind, ws)
				if skip != nil {
					skipped = append(skipped, *skip)
				} else if art != nil {
					artifacts = append(artifacts, *art)
				}
			}
		}

		stateDB := filepath.Join(workspaceDir, "state.vscdb")
		if art := statArtifact(stateDB, root.Kind, FormVSCDB, ws); art != nil {
			artifacts = append(artifacts, *art)
		}
	}

	return artifacts, skipped
}

func classifyEditorFile(path string, kind SourceKind, ws WorkspaceInfo) (*Artifact, *SkippedArtifact) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return statArtifact(path, kind, FormSnapshot, ws), nil
	case ".vscdb":
		return statArtifact(path, kind, FormVSCDB, ws), nil
	case ".jsonl":
		form, reason := probeJSONL(path)
		if form == "" {
			return nil, &SkippedArtifact{Path: path, Reason: reason}
		}
		return statArtifact(path, kind, form, ws), nil
	default:
		return nil, nil
	}
}

func discoverCLIRoot(root StorageRoot) ([]Artifact, []SkippedArtifact) {
	var artifacts []Artifact
	var skipped []SkippedArtifact

	entries, err := os.ReadDir(root.Path)
	if err != nil {
		return nil, nil
	}

	for _, entry := range entries {
		path := filepath.Join(root.Path, entry.Name())
		if entry.IsDir() {
			eventsPath := filepath.Join(path, "events.jsonl")
			if art := statArtifact(eventsPath, root.Kind, FormCLIEvents, WorkspaceInfo{}); art != nil {
				artifacts = append(artifacts, *art)
			}
			continue
		}
		if strings.ToLower(filepath.Ext(path)) != ".jsonl" {
			continue
		}
		form, reason := probeJSONL(path)
		if form == "" {
			skipped = append(skipped, SkippedArtifact{Path: path, Reason: reason})
			continue
		}
		// Editor append logs never live under the CLI roots; a kind-
		// tagged line here means a format we do not know yet.
		if form != FormCLIEvents {
			skipped = append(skipped, SkippedArtifact{Path: path, Reason: "not a CLI event stream"})
			continue
		}
		if art := statArtifact(path, root.Kind, FormCLIEvents, WorkspaceInfo{}); art != nil {
			artifacts = append(artifacts, *art)
		}
	}

	return artifacts, skipped
}

// probeJSONL classifies a line-delimited file by the shape of its first
// non-blank line: an integer kind marks an editor append log, a string
// type marks a CLI event stream. The probe never reads past the first
// decodable line.
func probeJSONL(path string) (ArtifactForm, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", "unreadable: " + err.Error()
	}
	defer f.Close()

	scanner := lineScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var probe map[string]any
		if err := json.Unmarshal(line, &probe); err != nil {
			return "", "first line is not JSON"
		}
		if _, ok := numValue(probe, "kind"); ok {
			return FormEditorLog, ""
		}
		if str(probe, "type") != "" {
			return FormCLIEvents, ""
		}
		return "", "unrecognized line shape"
	}
	return "", "no content"
}

// lineScanner returns a scanner sized for artifact lines. A single
// append-log line can hold an entire serialized session.
func lineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	return sc
}

func statArtifact(path string, kind SourceKind, form ArtifactForm, ws WorkspaceInfo) *Artifact {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}
	return &Artifact{
		Path:      path,
		Kind:      kind,
		Form:      form,
		Workspace: ws,
		Mtime:     float64(info.ModTime().UnixNano()) / 1e9,
		Size:      info.Size(),
	}
}
