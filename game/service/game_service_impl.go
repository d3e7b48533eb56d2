package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/session"
	"github.com/wricardo/command-quest/logging"
)

// Option configures the game service
type Option func(*gameServiceImpl)

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *gameServiceImpl) { s.logger = logging.OrNop(l) }
}

// WithStepDelay sets the pause between steps of RunProgram
func WithStepDelay(d time.Duration) Option {
	return func(s *gameServiceImpl) { s.stepDelay = d }
}

// WithEventSink forwards session events and reports to sink
func WithEventSink(sink EventSink) Option {
	return func(s *gameServiceImpl) { s.sink = sink }
}

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions  SessionManager
	configs   ConfigManager
	logger    *zap.Logger
	stepDelay time.Duration
	sink      EventSink
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession creates a new game session playing packName, or the
// default pack when packName is empty
func (s *gameServiceImpl) CreateSession(ctx context.Context, packName string) (*SessionInfo, error) {
	var pack *engine.LevelPack
	if packName == "" {
		pack = s.configs.GetDefault()
	} else {
		var err error
		pack, err = s.configs.LoadPack(packName)
		if err != nil {
			if errors.Is(err, ErrPackNotFound) {
				return nil, s.packNotFound(packName)
			}
			return nil, fmt.Errorf("failed to load pack %s: %w", packName, err)
		}
	}

	// No run can start before Create returns, so id is set before the
	// first event is forwarded.
	var id string
	sess, err := s.sessions.Create("", pack, s.sessionOptions(&id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	id = sess.ID
	s.logger.Info("session started", zap.String("session_id", sess.ID), zap.String("pack", pack.Name))
	return sessionInfo(sess), nil
}

// packNotFound builds a helpful error listing the available packs
func (s *gameServiceImpl) packNotFound(name string) error {
	packs, err := s.configs.ListPacks()
	if err != nil || len(packs) == 0 {
		return fmt.Errorf("%w: '%s'. Use /api/packs to list available packs", ErrPackNotFound, name)
	}
	ids := make([]string, 0, len(packs))
	for _, p := range packs {
		ids = append(ids, p.PackID)
	}
	return fmt.Errorf("%w: '%s'. Available packs: %s", ErrPackNotFound, name, strings.Join(ids, ", "))
}

func (s *gameServiceImpl) sessionOptions(id *string) []session.Option {
	opts := []session.Option{session.WithPacer(engine.DelayPacer(s.stepDelay))}
	if s.sink != nil {
		opts = append(opts,
			session.WithObserver(engine.ObserverFunc(func(ev engine.Event) {
				s.sink.SessionEvent(*id, ev)
			})),
			session.WithNotifier(session.NotifierFunc(func(r session.Report) {
				s.sink.SessionReport(*id, r)
			})),
		)
	}
	return opts
}

func sessionInfo(sess *session.Session) *SessionInfo {
	snap := sess.Level.Snapshot()
	return &SessionInfo{
		ID:             sess.ID,
		PackName:       snap.Pack,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessed(),
		State:          snap,
	}
}

// lookup fetches a session and marks it as used
func (s *gameServiceImpl) lookup(sessionID string) (*session.Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	return nil
}

// parseProgram turns command words into a program
func parseProgram(words []string) ([]engine.Command, error) {
	if len(words) > engine.MaxProgramSize {
		return nil, fmt.Errorf("%w: %d commands exceeds the limit of %d",
			ErrInvalidProgram, len(words), engine.MaxProgramSize)
	}
	program, err := engine.ParseProgram(words)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProgram, err)
	}
	return program, nil
}

// RunProgram executes a whole program, pacing steps by the configured
// delay. It returns once the run has ended or ctx is done.
func (s *gameServiceImpl) RunProgram(ctx context.Context, sessionID string, commands []string) (*RunResult, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	program, err := parseProgram(commands)
	if err != nil {
		return nil, err
	}
	notOffered := sess.Level.Level().NotOffered(program)

	report, err := sess.Level.Execute(ctx, program, nil)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}

	snap := sess.Level.Snapshot()
	return &RunResult{
		SessionID:  sess.ID,
		Report:     report,
		Run:        snap.Run,
		NotOffered: notOffered,
		State:      snap,
	}, nil
}

// StartRun begins a run that the caller resumes with StepRun
func (s *gameServiceImpl) StartRun(ctx context.Context, sessionID string, commands []string) (*RunResult, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	program, err := parseProgram(commands)
	if err != nil {
		return nil, err
	}
	notOffered := sess.Level.Level().NotOffered(program)

	if _, err := sess.Level.Start(program); err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}

	snap := sess.Level.Snapshot()
	return &RunResult{
		SessionID:  sess.ID,
		Run:        snap.Run,
		NotOffered: notOffered,
		State:      snap,
	}, nil
}

// StepRun resumes the active run by one command
func (s *gameServiceImpl) StepRun(ctx context.Context, sessionID string) (*StepResult, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	res, report, err := sess.Level.Step()
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return &StepResult{
		SessionID: sess.ID,
		Step:      res,
		Report:    report,
		State:     sess.Level.Snapshot(),
	}, nil
}

// AbortRun cancels the active run
func (s *gameServiceImpl) AbortRun(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Level.Abort(); err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return sess.Level.Snapshot(), nil
}

// Reset reloads the current level of a session
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Level.Reset(); err != nil {
		if !errors.Is(err, session.ErrCampaignComplete) {
			return nil, fmt.Errorf("session %s: %w", sess.ID, err)
		}
		// A finished campaign starts over
		sess.Level.Restart()
	}
	return sess.Level.Snapshot(), nil
}

// GetLevelState returns the current state of a session
func (s *gameServiceImpl) GetLevelState(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Level.Snapshot(), nil
}

// ListPacks returns all available level packs
func (s *gameServiceImpl) ListPacks(ctx context.Context) ([]*PackInfo, error) {
	return s.configs.ListPacks()
}

// LoadPack loads a level pack by name
func (s *gameServiceImpl) LoadPack(ctx context.Context, packName string) (*engine.LevelPack, error) {
	pack, err := s.configs.LoadPack(packName)
	if errors.Is(err, ErrPackNotFound) {
		return nil, s.packNotFound(packName)
	}
	return pack, err
}

// SavePack stores a level pack
func (s *gameServiceImpl) SavePack(ctx context.Context, packName string, pack *engine.LevelPack) error {
	if err := s.configs.SavePack(packName, pack); err != nil {
		return err
	}
	s.logger.Info("level pack saved", zap.String("pack", packName), zap.Int("levels", len(pack.Levels)))
	return nil
}
