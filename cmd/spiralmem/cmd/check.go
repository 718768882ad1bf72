package cmd

import (
	"context"
	"net/http"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

// toolStatus is one external dependency's availability.
type toolStatus struct {
	Name      string `json:"name"`
	Required  bool   `json:"required"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Note      string `json:"note"`
}

func newCheckCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check external tool availability",
		Long: `Verifies the external binaries and services spiralmem shells out to:
ffmpeg and ffprobe (required), whisper, yt-dlp, and Ollama (optional,
the matching features degrade when missing).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runCheck(cmd *cobra.Command, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	statuses := []toolStatus{
		lookTool("ffmpeg", a.cfg.Video.FFmpegPath, true, "audio and frame extraction"),
		lookTool("ffprobe", a.cfg.Video.FFprobePath, true, "media metadata"),
		lookTool("whisper", a.cfg.Video.WhisperPath, false, "transcription"),
		lookTool("yt-dlp", a.cfg.Platform.YtDlpPath, false, "platform downloads"),
		checkOllama(cmd.Context(), a.cfg.Embeddings.OllamaHost),
	}

	if jsonOut {
		return finishJSON(cmd, map[string]any{"tools": statuses}, nil)
	}

	out := console(cmd)
	allRequired := true
	for _, s := range statuses {
		switch {
		case s.Available:
			out.Successf("%s: %s (%s)", s.Name, s.Path, s.Note)
		case s.Required:
			out.Errorf("%s: not found, %s will fail", s.Name, s.Note)
			allRequired = false
		default:
			out.Warningf("%s: not found, %s disabled", s.Name, s.Note)
		}
	}
	if !allRequired {
		out.Detail("install the missing required tools and re-run 'spiralmem check'")
	}
	return nil
}

func lookTool(name, configured string, required bool, note string) toolStatus {
	binary := configured
	if binary == "" {
		binary = name
	}
	path, err := exec.LookPath(binary)
	return toolStatus{
		Name:      name,
		Required:  required,
		Available: err == nil,
		Path:      path,
		Note:      note,
	}
}

// checkOllama probes the embedding endpoint with a short timeout.
func checkOllama(ctx context.Context, host string) toolStatus {
	status := toolStatus{Name: "ollama", Note: "semantic search embeddings"}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return status
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status
	}
	defer resp.Body.Close()

	status.Available = resp.StatusCode == http.StatusOK
	status.Path = host
	return status
}
