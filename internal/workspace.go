package internal

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// WorkspaceInfo identifies the workspace an editor storage directory
// belongs to.
type WorkspaceInfo struct {
	Hash string
	Name string
	Path string
}

// ResolveWorkspace reads workspace.json from an editor workspace storage
// directory. The folder key is a URI; file:// schemes are stripped,
// percent-encoding decoded, and Windows drive paths lose their leading
// slash. A missing or unreadable file yields an identity with only the
// hash set.
func ResolveWorkspace(workspaceDir string) WorkspaceInfo {
	info := WorkspaceInfo{Hash: filepath.Base(workspaceDir)}

	data, err := os.ReadFile(filepath.Join(workspaceDir, "workspace.json"))
	if err != nil {
		return info
	}

	var payload struct {
		Folder string `json:"folder"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return info
	}

	folder := payload.Folder
	if strings.HasPrefix(folder, "file://") {
		folder = folder[len("file://"):]
		// Windows URIs come through as /C:/path.
		if len(folder) >= 3 && folder[0] == '/' && folder[2] == ':' {
			folder = folder[1:]
		}
	}
	if decoded, err := url.PathUnescape(folder); err == nil {
		folder = decoded
	}
	if folder == "" {
		return info
	}

	info.Path = folder
	info.Name = shortenPath(strings.TrimRight(folder, `/\`))
	return info
}
