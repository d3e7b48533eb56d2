package service

import (
	"errors"
	"time"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/session"
)

var (
	ErrInvalidProgram = errors.New("invalid program")
	ErrPackNotFound   = errors.New("level pack not found")
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string            `json:"id"`
	PackName       string            `json:"pack"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	State          *session.Snapshot `json:"state"`
}

// RunResult is returned when a run starts or finishes
type RunResult struct {
	SessionID string `json:"session_id"`
	// Report is nil until the run has ended
	Report *session.Report `json:"report,omitempty"`
	Run    *engine.Result  `json:"run,omitempty"`
	// NotOffered lists program commands the level does not offer. They
	// are executed anyway.
	NotOffered []engine.Command  `json:"not_offered,omitempty"`
	State      *session.Snapshot `json:"state"`
}

// StepResult is the outcome of resuming a run by one step
type StepResult struct {
	SessionID string            `json:"session_id"`
	Step      engine.StepResult `json:"step"`
	Report    *session.Report   `json:"report,omitempty"`
	State     *session.Snapshot `json:"state"`
}

// PackInfo provides information about a level pack
type PackInfo struct {
	Filename    string `json:"filename,omitempty"`
	PackID      string `json:"pack_id"` // The identifier to use for session creation
	Name        string `json:"name"`
	Description string `json:"description"`
	Levels      int    `json:"levels"`
	Builtin     bool   `json:"builtin,omitempty"`
}
