package service

import (
	"context"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/session"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, packName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Program Execution
	RunProgram(ctx context.Context, sessionID string, commands []string) (*RunResult, error)
	StartRun(ctx context.Context, sessionID string, commands []string) (*RunResult, error)
	StepRun(ctx context.Context, sessionID string) (*StepResult, error)
	AbortRun(ctx context.Context, sessionID string) (*session.Snapshot, error)
	Reset(ctx context.Context, sessionID string) (*session.Snapshot, error)

	// Level State
	GetLevelState(ctx context.Context, sessionID string) (*session.Snapshot, error)

	// Level Packs
	ListPacks(ctx context.Context) ([]*PackInfo, error)
	LoadPack(ctx context.Context, packName string) (*engine.LevelPack, error)
	SavePack(ctx context.Context, packName string, pack *engine.LevelPack) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, pack *engine.LevelPack, opts ...session.Option) (*session.Session, error)
	Get(id string) (*session.Session, error)
	List() []*session.Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
}

// ConfigManager handles level pack loading
type ConfigManager interface {
	LoadPack(name string) (*engine.LevelPack, error)
	ListPacks() ([]*PackInfo, error)
	GetDefault() *engine.LevelPack
	SavePack(name string, pack *engine.LevelPack) error
}

// EventSink receives the live output of every session, for example to fan
// it out to websocket clients
type EventSink interface {
	SessionEvent(sessionID string, ev engine.Event)
	SessionReport(sessionID string, report session.Report)
}
