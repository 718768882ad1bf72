// Package transcribe adapts a local whisper binary into a typed
// speech-recognition interface. Transcript JSON is persisted under the
// configured transcripts directory so a re-run never re-transcribes.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/store"
)

// Options tunes one transcription run.
type Options struct {
	Model          string // whisper model name, default "base"
	Language       string // empty means auto-detect
	WordTimestamps bool
	OutputDir      string // transcripts directory
}

// Result is the outcome of one transcription.
type Result struct {
	Success           bool              `json:"success"`
	Transcript        *store.Transcript `json:"transcript,omitempty"`
	AverageConfidence float64           `json:"averageConfidence,omitempty"`
	OutputFilePath    string            `json:"outputFilePath,omitempty"`
}

// Transcriber converts an audio file into a timestamped transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
	// Available reports whether the underlying tool can run.
	Available() bool
}

// WhisperCLI shells out to the whisper command-line tool.
type WhisperCLI struct {
	binary string
	log    *slog.Logger
}

// NewWhisperCLI resolves the whisper binary (PATH lookup when path is
// empty). Resolution failure is deferred to Transcribe so construction
// never fails.
func NewWhisperCLI(path string, log *slog.Logger) *WhisperCLI {
	if log == nil {
		log = slog.Default()
	}
	if path == "" {
		path = "whisper"
	}
	return &WhisperCLI{binary: path, log: log}
}

func (w *WhisperCLI) Available() bool {
	_, err := exec.LookPath(w.binary)
	return err == nil
}

// Transcribe runs whisper over the audio file and parses its JSON output.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	bin, err := exec.LookPath(w.binary)
	if err != nil {
		return nil, spiralerr.New(spiralerr.ErrCodeTranscriberMissing,
			"whisper not found on PATH").
			WithSuggestion("pip install openai-whisper, or set video.whisperPath in the config")
	}

	if _, err := os.Stat(audioPath); err != nil {
		return nil, spiralerr.New(spiralerr.ErrCodeFileNotFound,
			fmt.Sprintf("audio file not found: %s", audioPath))
	}

	if opts.Model == "" {
		opts.Model = "base"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeTranscription, "cannot create transcripts directory")
	}

	args := []string{
		audioPath,
		"--model", opts.Model,
		"--output_format", "json",
		"--output_dir", opts.OutputDir,
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.WordTimestamps {
		args = append(args, "--word_timestamps", "True")
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > 1024 {
			tail = tail[len(tail)-1024:]
		}
		w.log.Warn("whisper failed", "audio", audioPath, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeTranscription, "whisper transcription failed").
			WithDetail("stderr_tail", tail)
	}

	outPath := whisperOutputPath(audioPath, opts.OutputDir)
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeTranscription, "whisper output file missing")
	}

	transcript, avgConfidence, err := parseWhisperJSON(data)
	if err != nil {
		return nil, err
	}

	w.log.Info("transcription complete",
		"audio", audioPath,
		"language", transcript.Language,
		"segments", transcript.SegmentCount,
		"elapsed_ms", time.Since(start).Milliseconds())

	return &Result{
		Success:           true,
		Transcript:        transcript,
		AverageConfidence: avgConfidence,
		OutputFilePath:    outPath,
	}, nil
}

const transcribeTimeout = 30 * time.Minute

// whisperOutputPath mirrors whisper's naming: <basename>.json next to the
// audio stem inside the output directory.
func whisperOutputPath(audioPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(outputDir, base+".json")
}
