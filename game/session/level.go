package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/logging"
)

var (
	ErrReentrantExecution = errors.New("run rejected")
	ErrRunInProgress      = errors.New("a run is already in progress")
	ErrEmptyProgram       = errors.New("program has no commands")
	ErrAwaitingReset      = errors.New("level must be reset before running again")
	ErrCampaignComplete   = errors.New("all levels are complete")
	ErrNoActiveRun        = errors.New("no run in progress")
)

// State is the orchestration state of a LevelSession
type State int

const (
	Ready State = iota
	Running
	AwaitingReset
	Complete
)

var stateNames = [...]string{"ready", "running", "awaiting_reset", "complete"}

func (s State) String() string {
	if s < Ready || s > Complete {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// ReportKind classifies a Report
type ReportKind string

const (
	ReportLevelComplete ReportKind = "level_complete"
	ReportGameOver      ReportKind = "game_over"
	ReportTryAgain      ReportKind = "try_again"
	ReportGameComplete  ReportKind = "game_complete"
	ReportRejected      ReportKind = "rejected"
	ReportReset         ReportKind = "reset"
)

// Report is a user-facing notice produced by the session
type Report struct {
	Kind       ReportKind        `json:"kind"`
	LevelIndex int               `json:"level_index"`
	LevelID    int               `json:"level_id"`
	Outcome    engine.RunOutcome `json:"outcome"`
	Message    string            `json:"message"`
	Score      int               `json:"score"`
	ScoreDelta int               `json:"score_delta"`
	RunID      string            `json:"run_id,omitempty"`
	// NextLevel is set when a win advanced the session
	NextLevel *int `json:"next_level,omitempty"`
}

// Notifier receives every Report a session produces
type Notifier interface {
	Notify(r Report)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(r Report)

func (f NotifierFunc) Notify(r Report) { f(r) }

// Option configures a LevelSession
type Option func(*LevelSession)

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) Option {
	return func(s *LevelSession) { s.logger = logging.OrNop(l) }
}

// WithNotifier registers the receiver of session reports
func WithNotifier(n Notifier) Option {
	return func(s *LevelSession) { s.notifier = n }
}

// WithObserver registers a receiver of every engine event of every run.
// It may be given more than once.
func WithObserver(o engine.Observer) Option {
	return func(s *LevelSession) { s.observers = append(s.observers, o) }
}

// WithPacer sets the pacer Execute waits on between steps
func WithPacer(p engine.Pacer) Option {
	return func(s *LevelSession) { s.pacer = p }
}

// WithStartLevel starts the session on the level at index
func WithStartLevel(index int) Option {
	return func(s *LevelSession) { s.index = index }
}

// LevelSession walks a player through the levels of a pack. It owns the
// current grid and player state and hands them to one run at a time.
type LevelSession struct {
	mu sync.Mutex

	pack      *engine.LevelPack
	messages  engine.Messages
	logger    *zap.Logger
	notifier  Notifier
	observers engine.MultiObserver
	pacer     engine.Pacer

	index      int
	grid       *engine.Grid
	player     engine.PlayerState
	score      int
	entryScore int
	state      State
	message    string

	run        *engine.Run
	lastResult *engine.Result
	lastReport *Report
}

// NewLevelSession validates pack and loads its first level, or the level
// chosen with WithStartLevel.
func NewLevelSession(pack *engine.LevelPack, opts ...Option) (*LevelSession, error) {
	if err := engine.ValidatePack(pack); err != nil {
		return nil, err
	}
	s := &LevelSession{
		pack:     pack,
		messages: pack.Messages.WithDefaults(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index < 0 || s.index >= len(pack.Levels) {
		return nil, fmt.Errorf("%w: level index %d out of range, pack %q has %d levels",
			engine.ErrConfiguration, s.index, pack.Name, len(pack.Levels))
	}
	s.logger = s.logger.With(zap.String("pack", pack.Name))
	s.message = s.messages.Welcome
	s.loadLevel(s.index)
	return s, nil
}

func (s *LevelSession) loadLevel(index int) {
	s.index = index
	def := &s.pack.Levels[index]
	s.grid, s.player = engine.LoadLevel(def, s.logger)
	s.entryScore = s.score
	s.state = Ready
	s.run = nil
	if def.TutorialMessage != "" {
		s.message = def.TutorialMessage
	}
	s.logger.Info("level loaded",
		zap.Int("level_index", index),
		zap.Int("level_id", def.ID),
		zap.String("level", def.Name))
}

// Start begins a run of commands on the current level. Rejected requests
// leave the session untouched.
func (s *LevelSession) Start(commands []engine.Command) (string, error) {
	s.mu.Lock()
	id, report, err := s.start(commands)
	s.mu.Unlock()
	if report != nil {
		s.notify(*report)
	}
	return id, err
}

func (s *LevelSession) start(commands []engine.Command) (string, *Report, error) {
	var err error
	switch {
	case s.state == Running:
		err = fmt.Errorf("%w: %w", ErrReentrantExecution, ErrRunInProgress)
	case len(commands) == 0:
		err = fmt.Errorf("%w: %w", ErrReentrantExecution, ErrEmptyProgram)
	case s.state == AwaitingReset:
		err = ErrAwaitingReset
	case s.state == Complete:
		err = ErrCampaignComplete
	}
	if err != nil {
		s.logger.Info("run rejected", zap.String("state", s.state.String()), zap.Error(err))
		return "", s.report(ReportRejected, engine.InProgress, s.messages.Rejected, ""), err
	}

	if missing := s.pack.Levels[s.index].NotOffered(commands); len(missing) > 0 {
		s.logger.Debug("program uses commands the level does not offer", zap.Stringers("commands", missing))
	}

	s.run = engine.NewRun(s.grid, s.player, commands)
	s.lastResult = nil
	s.state = Running
	s.logger.Info("run started", zap.String("run_id", s.run.ID()), zap.Int("commands", len(commands)))
	return s.run.ID(), nil, nil
}

// Step advances the active run by one command. The returned Report is
// non-nil when the step ended the run.
func (s *LevelSession) Step() (engine.StepResult, *Report, error) {
	return s.step("")
}

func (s *LevelSession) step(runID string) (engine.StepResult, *Report, error) {
	s.mu.Lock()
	if s.run == nil || (runID != "" && s.run.ID() != runID) {
		s.mu.Unlock()
		if runID != "" {
			return engine.StepResult{}, nil, engine.ErrRunCancelled
		}
		return engine.StepResult{}, nil, ErrNoActiveRun
	}

	run := s.run
	res, err := run.Step()
	if err != nil {
		s.mu.Unlock()
		return res, nil, err
	}
	s.player = res.State
	if res.Command != nil {
		s.message = s.messages.ExecutingFor(*res.Command)
		s.logger.Debug("executing",
			zap.String("run_id", run.ID()),
			zap.Int("step", res.Step),
			zap.Stringer("command", res.Command),
			zap.Int("x", res.State.X),
			zap.Int("y", res.State.Y),
			zap.Stringer("facing", res.State.Facing))
	}
	for _, ev := range res.Events {
		if ev.Kind == engine.EventScore {
			s.score += ev.Delta
			s.message = s.messages.TreasureFor(s.score)
		}
	}

	var report *Report
	if res.Done {
		report = s.conclude(run)
	}
	observers := s.observers
	s.mu.Unlock()

	for _, ev := range res.Events {
		observers.Observe(ev)
	}
	if report != nil {
		s.notify(*report)
	}
	return res, report, nil
}

// conclude turns a finished run into a report and the next session state
func (s *LevelSession) conclude(run *engine.Run) *Report {
	s.run = nil
	s.lastResult = run.Result()
	outcome := run.Outcome()

	var report *Report
	switch outcome {
	case engine.OutOfBounds:
		s.state = AwaitingReset
		report = s.report(ReportGameOver, outcome, s.messages.OutOfBounds, run.ID())
	case engine.HazardHit:
		msg := s.messages.HazardTrap
		if run.Hazard() == engine.Enemy {
			msg = s.messages.HazardEnemy
		}
		s.state = AwaitingReset
		report = s.report(ReportGameOver, outcome, msg, run.ID())
	case engine.GoalMissed:
		s.state = AwaitingReset
		report = s.report(ReportTryAgain, outcome, s.messages.GoalMissed, run.ID())
	case engine.GoalReached:
		if s.index+1 < len(s.pack.Levels) {
			report = s.report(ReportLevelComplete, outcome, s.messages.GoalReached, run.ID())
			next := s.index + 1
			report.NextLevel = &next
			s.loadLevel(next)
		} else {
			s.state = Complete
			report = s.report(ReportGameComplete, outcome, s.messages.GameComplete, run.ID())
		}
	}
	report.ScoreDelta = run.ScoreDelta()
	s.message = report.Message

	s.logger.Info("run finished",
		zap.String("run_id", run.ID()),
		zap.Stringer("outcome", outcome),
		zap.Int("steps", run.Steps()),
		zap.Int("score_delta", run.ScoreDelta()),
		zap.Int("score", s.score),
		zap.String("report", string(report.Kind)))
	return report
}

func (s *LevelSession) report(kind ReportKind, outcome engine.RunOutcome, msg, runID string) *Report {
	r := &Report{
		Kind:       kind,
		LevelIndex: s.index,
		LevelID:    s.pack.Levels[s.index].ID,
		Outcome:    outcome,
		Message:    msg,
		Score:      s.score,
		RunID:      runID,
	}
	if kind != ReportRejected {
		s.lastReport = r
	}
	return r
}

func (s *LevelSession) notify(r Report) {
	if s.notifier != nil {
		s.notifier.Notify(r)
	}
}

// Abort cancels the active run between steps. No outcome is reported.
func (s *LevelSession) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort()
}

func (s *LevelSession) abort() error {
	if s.run == nil {
		return ErrNoActiveRun
	}
	run := s.run
	run.Cancel()
	s.run = nil
	s.lastResult = run.Result()
	if run.Steps() == 0 {
		s.state = Ready
	} else {
		s.state = AwaitingReset
	}
	s.logger.Info("run aborted", zap.String("run_id", run.ID()), zap.Int("steps", run.Steps()))
	return nil
}

// Execute runs commands to completion, delivering events to observer and
// waiting on the session pacer between steps. Aborting the run or resetting
// the level from another goroutine ends Execute with engine.ErrRunCancelled.
func (s *LevelSession) Execute(ctx context.Context, commands []engine.Command, observer engine.Observer) (*Report, error) {
	runID, err := s.Start(commands)
	if err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			s.abortRun(runID)
			return nil, err
		}
		res, report, err := s.step(runID)
		if err != nil {
			return nil, err
		}
		if observer != nil {
			for _, ev := range res.Events {
				observer.Observe(ev)
			}
		}
		if res.Done {
			return report, nil
		}
		if s.pacer != nil {
			if err := s.pacer.Wait(ctx, res); err != nil {
				s.abortRun(runID)
				return nil, err
			}
		}
	}
}

func (s *LevelSession) abortRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil && s.run.ID() == runID {
		s.abort()
	}
}

// Reset reloads the current level, cancelling any active run. With the
// pack's ScoreResetOnRetry policy the score returns to its value at level
// entry; otherwise points collected so far are kept.
func (s *LevelSession) Reset() (*Report, error) {
	s.mu.Lock()
	if s.state == Complete {
		s.mu.Unlock()
		return nil, ErrCampaignComplete
	}
	if s.run != nil {
		s.abort()
	}
	if s.pack.ScoreResetOnRetry {
		s.score = s.entryScore
	}
	s.loadLevel(s.index)
	s.lastResult = nil
	s.message = s.messages.Reset
	report := s.report(ReportReset, engine.InProgress, s.messages.Reset, "")
	s.mu.Unlock()

	s.notify(*report)
	return report, nil
}

// Restart begins the campaign again from the first level with a zero score
func (s *LevelSession) Restart() {
	s.mu.Lock()
	if s.run != nil {
		s.abort()
	}
	s.score = 0
	s.lastResult = nil
	s.lastReport = nil
	s.message = s.messages.Welcome
	s.loadLevel(0)
	s.mu.Unlock()
}

// Level returns the definition of the current level
func (s *LevelSession) Level() *engine.LevelDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &s.pack.Levels[s.index]
}

// Pack returns the level pack being played
func (s *LevelSession) Pack() *engine.LevelPack { return s.pack }

func (s *LevelSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *LevelSession) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	State             State              `json:"state"`
	Pack              string             `json:"pack"`
	LevelIndex        int                `json:"level_index"`
	LevelCount        int                `json:"level_count"`
	LevelID           int                `json:"level_id"`
	LevelName         string             `json:"level_name"`
	TutorialMessage   string             `json:"tutorial_message,omitempty"`
	AvailableCommands []engine.Command   `json:"available_commands"`
	Width             int                `json:"width"`
	Height            int                `json:"height"`
	Board             []string           `json:"board"`
	Player            engine.PlayerState `json:"player"`
	Score             int                `json:"score"`
	Message           string             `json:"message"`
	// Run is the active run, or the last finished one
	Run        *engine.Result `json:"run,omitempty"`
	LastReport *Report        `json:"last_report,omitempty"`
}

// Snapshot returns the current state of the session
func (s *LevelSession) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := &s.pack.Levels[s.index]
	snap := &Snapshot{
		State:             s.state,
		Pack:              s.pack.Name,
		LevelIndex:        s.index,
		LevelCount:        len(s.pack.Levels),
		LevelID:           def.ID,
		LevelName:         def.Name,
		TutorialMessage:   def.TutorialMessage,
		AvailableCommands: append([]engine.Command(nil), def.AvailableCommands...),
		Width:             s.grid.Width(),
		Height:            s.grid.Height(),
		Board:             s.grid.Rows(),
		Player:            s.player,
		Score:             s.score,
		Message:           s.message,
		Run:               s.lastResult,
	}
	if s.run != nil {
		snap.Run = s.run.Result()
	}
	if s.lastReport != nil {
		r := *s.lastReport
		snap.LastReport = &r
	}
	return snap
}

var facingMarks = map[engine.Direction]byte{
	engine.North: 'v',
	engine.East:  '>',
	engine.South: '^',
	engine.West:  '<',
}

// RenderBoard draws the board rows with the player marked by an arrow.
// Row 0 is printed first, so north (y+1) points down the page.
func (snap *Snapshot) RenderBoard() []string {
	rows := make([]string, len(snap.Board))
	copy(rows, snap.Board)
	p := snap.Player
	if p.Y >= 0 && p.Y < len(rows) && p.X >= 0 && p.X < len(rows[p.Y]) {
		row := []byte(rows[p.Y])
		row[p.X] = facingMarks[p.Facing]
		rows[p.Y] = string(row)
	}
	return rows
}
