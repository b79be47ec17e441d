package vast

import (
	"fmt"
	"strings"
)

// OnStartConfig describes the remote boot sequence: start the lazy-loading
// agent in the background, then start the serving process in the
// foreground so the container stays up.
type OnStartConfig struct {
	// FolderID is the content store folder holding the model library.
	FolderID string
	// ComfyPath is the serving process install directory.
	ComfyPath string
	// Port is the serving process listen port.
	Port int
	// ExtraArgs are appended to the serving process command line.
	ExtraArgs []string
}

// BuildOnStart renders the instance onstart shell command.
func BuildOnStart(cfg OnStartConfig) string {
	path := cfg.ComfyPath
	if path == "" {
		path = "/app"
	}
	port := cfg.Port
	if port == 0 {
		port = 8188
	}

	lines := []string{
		fmt.Sprintf("nohup stubd run %s >/var/log/stubd.log 2>&1 &", cfg.FolderID),
	}
	comfy := fmt.Sprintf("cd %s && python main.py --listen 0.0.0.0 --port %d", path, port)
	if len(cfg.ExtraArgs) > 0 {
		comfy += " " + strings.Join(cfg.ExtraArgs, " ")
	}
	lines = append(lines, comfy)
	return strings.Join(lines, "\n")
}
