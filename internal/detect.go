package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// StorageRoot is one directory scanned for session artifacts, tagged
// with the source kind its contents belong to.
type StorageRoot struct {
	Path string
	Kind SourceKind
}

// DetectStorageRoots returns the candidate storage directories for the
// current OS. Non-existent roots are included; discovery skips them
// silently so a machine with only one edition installed just works.
func DetectStorageRoots() ([]StorageRoot, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	var stableBase, insiderBase string
	switch runtime.GOOS {
	case "windows":
		appdata := os.Getenv("APPDATA")
		if appdata != "" {
			stableBase = filepath.Join(appdata, "Code")
			insiderBase = filepath.Join(appdata, "Code - Insiders")
		}
	case "darwin":
		stableBase = filepath.Join(home, "Library/Application Support/Code")
		insiderBase = filepath.Join(home, "Library/Application Support/Code - Insiders")
	default:
		stableBase = filepath.Join(home, ".config/Code")
		insiderBase = filepath.Join(home, ".config/Code - Insiders")
	}

	var roots []StorageRoot
	if stableBase != "" {
		roots = append(roots, StorageRoot{
			Path: filepath.Join(stableBase, "User", "workspaceStorage"),
			Kind: SourceEditorStable,
		})
	}
	if insiderBase != "" {
		roots = append(roots, StorageRoot{
			Path: filepath.Join(insiderBase, "User", "workspaceStorage"),
			Kind: SourceEditorInsider,
		})
	}

	copilotDir := filepath.Join(home, ".copilot")
	roots = append(roots,
		StorageRoot{Path: filepath.Join(copilotDir, "session-state"), Kind: SourceCLICurrent},
		StorageRoot{Path: filepath.Join(copilotDir, "history-session-state"), Kind: SourceCLILegacy},
	)

	return roots, nil
}

// FilterRoots applies the edition filter ("stable", "insider", "both")
// and the CLI toggle to a set of roots.
func FilterRoots(roots []StorageRoot, edition string, includeCLI bool) []StorageRoot {
	var out []StorageRoot
	for _, root := range roots {
		switch {
		case root.Kind.IsEditor():
			if edition == "stable" && root.Kind != SourceEditorStable {
				continue
			}
			if edition == "insider" && root.Kind != SourceEditorInsider {
				continue
			}
			out = append(out, root)
		case root.Kind.IsCLI():
			if includeCLI {
				out = append(out, root)
			}
		}
	}
	return out
}

// Exists reports whether the root directory is present on disk.
func (r StorageRoot) Exists() bool {
	info, err := os.Stat(r.Path)
	return err == nil && info.IsDir()
}
