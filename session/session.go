// Package session implements the Session Recorder (component H): best-effort,
// idempotent persistence of one reply call's full message-history snapshot,
// rewriting the whole line-delimited JSON file on each call, framed with a header
// metadata line per spec §4.8/§6. Grounded on the teacher's
// session_history.go idiom of one service instance shared across sessions
// keyed by id, adapted from in-memory conversation state to on-disk
// snapshot writes.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/internal/logging"
)

// header is the metadata line written before the message lines.
type header struct {
	WorkingDir   string `json:"working_dir"`
	TotalTokens  int    `json:"total_tokens"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	MessageCount int    `json:"message_count"`
}

// Recorder writes one file per session id under BaseDir. It implements
// loop.SessionRecorder structurally, without importing package loop.
type Recorder struct {
	BaseDir string
	Log     *slog.Logger
}

// New builds a Recorder writing session files under baseDir.
func New(baseDir string, log *slog.Logger) *Recorder {
	return &Recorder{BaseDir: baseDir, Log: log}
}

func (r *Recorder) logger() *slog.Logger {
	if r.Log == nil {
		return logging.Default()
	}
	return r.Log
}

func (r *Recorder) path(sessionID string) string {
	return filepath.Join(r.BaseDir, sessionID+".jsonl")
}

// Persist writes the full message snapshot for cfg.ID, replacing whatever
// was there before. Failure is logged, never surfaced to the reply stream,
// per §4.8's "best-effort" contract.
func (r *Recorder) Persist(ctx context.Context, cfg agent.SessionConfig, messages []agent.Message, usage agent.Usage) {
	if err := r.persist(cfg, messages, usage); err != nil {
		r.logger().Warn("session persist failed", "session", cfg.ID, "error", err)
	}
}

func (r *Recorder) persist(cfg agent.SessionConfig, messages []agent.Message, usage agent.Usage) error {
	if cfg.ID == "" {
		return fmt.Errorf("session: empty session id")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	h := header{
		WorkingDir:   cfg.WorkingDir,
		TotalTokens:  derefOr(usage.TotalTokens, derefOr(usage.InputTokens, 0)+derefOr(usage.OutputTokens, 0)),
		InputTokens:  derefOr(usage.InputTokens, 0),
		OutputTokens: derefOr(usage.OutputTokens, 0),
		MessageCount: len(messages),
	}
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("session: encode header: %w", err)
	}
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("session: encode message: %w", err)
		}
	}

	path := r.path(cfg.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("session: create session dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("session: rename into place: %w", err)
	}
	return nil
}

func derefOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}
