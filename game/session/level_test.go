package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wricardo/command-quest/game/engine"
)

type reportRecorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *reportRecorder) Notify(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *reportRecorder) kinds() []ReportKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReportKind, len(r.reports))
	for i, rep := range r.reports {
		out[i] = rep.Kind
	}
	return out
}

func threeLevelPack() *engine.LevelPack {
	return &engine.LevelPack{
		Name: "corridors",
		Levels: []engine.LevelDefinition{
			{ID: 10, Name: "one", StartDirection: engine.East, Layout: []string{"STE"}, AvailableCommands: []engine.Command{engine.Advance}},
			{ID: 20, Name: "two", StartDirection: engine.East, Layout: []string{"S.E"}, AvailableCommands: []engine.Command{engine.Advance}},
			{ID: 30, Name: "three", StartDirection: engine.East, Layout: []string{"STME"}, AvailableCommands: engine.AllCommands},
		},
	}
}

func mustSession(t *testing.T, pack *engine.LevelPack, opts ...Option) *LevelSession {
	t.Helper()
	s, err := NewLevelSession(pack, opts...)
	if err != nil {
		t.Fatalf("NewLevelSession failed: %v", err)
	}
	return s
}

func twoAdvances() []engine.Command {
	return []engine.Command{engine.Advance, engine.Advance}
}

func TestNewLevelSession_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		pack *engine.LevelPack
		opts []Option
	}{
		{"nil pack", nil, nil},
		{"no levels", &engine.LevelPack{Name: "empty"}, nil},
		{"index past end", engine.DefaultPack(), []Option{WithStartLevel(2)}},
		{"negative index", engine.DefaultPack(), []Option{WithStartLevel(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLevelSession(tt.pack, tt.opts...); !errors.Is(err, engine.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestNewLevelSession_InitialSnapshot(t *testing.T) {
	s := mustSession(t, engine.DefaultPack())
	snap := s.Snapshot()

	if snap.State != Ready || snap.LevelIndex != 0 || snap.LevelCount != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Player != (engine.PlayerState{X: 0, Y: 0, Facing: engine.East}) {
		t.Errorf("unexpected player %+v", snap.Player)
	}
	if snap.Board[0] != "S.TE" || snap.Width != 4 || snap.Height != 4 {
		t.Errorf("unexpected board %v", snap.Board)
	}
	if snap.Message == "" {
		t.Error("expected an initial message")
	}
}

func TestLevelSession_WinAdvancesLevel(t *testing.T) {
	rec := &reportRecorder{}
	s := mustSession(t, threeLevelPack(), WithNotifier(rec))

	report, err := s.Execute(context.Background(), twoAdvances(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if report.Kind != ReportLevelComplete || report.Outcome != engine.GoalReached {
		t.Errorf("expected level complete report, got %+v", report)
	}
	if report.NextLevel == nil || *report.NextLevel != 1 {
		t.Errorf("expected next level 1, got %v", report.NextLevel)
	}
	if report.ScoreDelta != 1 || report.Score != 1 {
		t.Errorf("expected 1 point, got delta=%d score=%d", report.ScoreDelta, report.Score)
	}

	snap := s.Snapshot()
	if snap.LevelIndex != 1 || snap.State != Ready || snap.LevelID != 20 {
		t.Errorf("expected second level ready, got %+v", snap)
	}
	if snap.Player.X != 0 {
		t.Errorf("player should be placed on the new start, got %+v", snap.Player)
	}
	if kinds := rec.kinds(); len(kinds) != 1 || kinds[0] != ReportLevelComplete {
		t.Errorf("unexpected notifications %v", kinds)
	}
}

func TestLevelSession_LastLevelCompletesCampaign(t *testing.T) {
	s := mustSession(t, engine.DefaultPack(), WithStartLevel(1))

	report, err := s.Execute(context.Background(),
		[]engine.Command{engine.TurnLeft, engine.Advance, engine.Advance}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if report.Kind != ReportGameComplete {
		t.Errorf("expected game complete, got %v", report.Kind)
	}
	if s.State() != Complete {
		t.Errorf("expected complete state, got %v", s.State())
	}

	if _, err := s.Start(twoAdvances()); !errors.Is(err, ErrCampaignComplete) {
		t.Errorf("expected ErrCampaignComplete, got %v", err)
	}
	if _, err := s.Reset(); !errors.Is(err, ErrCampaignComplete) {
		t.Errorf("expected reset to be refused, got %v", err)
	}

	s.Restart()
	snap := s.Snapshot()
	if snap.State != Ready || snap.LevelIndex != 0 || snap.Score != 0 {
		t.Errorf("restart should return to the first level, got %+v", snap)
	}
}

func TestLevelSession_FailuresAwaitReset(t *testing.T) {
	tests := []struct {
		name     string
		layout   string
		commands []engine.Command
		kind     ReportKind
		outcome  engine.RunOutcome
		message  string
	}{
		{"out of bounds", "S.E", []engine.Command{engine.TurnRight, engine.Advance}, ReportGameOver, engine.OutOfBounds, engine.DefaultMessages().OutOfBounds},
		{"enemy", "SME", twoAdvances(), ReportGameOver, engine.HazardHit, engine.DefaultMessages().HazardEnemy},
		{"trap", "SXE", twoAdvances(), ReportGameOver, engine.HazardHit, engine.DefaultMessages().HazardTrap},
		{"goal missed", "S.E", []engine.Command{engine.Advance}, ReportTryAgain, engine.GoalMissed, engine.DefaultMessages().GoalMissed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pack := &engine.LevelPack{Name: "p", Levels: []engine.LevelDefinition{
				{ID: 1, StartDirection: engine.East, Layout: []string{tt.layout}},
			}}
			s := mustSession(t, pack)

			report, err := s.Execute(context.Background(), tt.commands, nil)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if report.Kind != tt.kind || report.Outcome != tt.outcome || report.Message != tt.message {
				t.Errorf("unexpected report %+v", report)
			}
			if s.State() != AwaitingReset {
				t.Errorf("expected awaiting_reset, got %v", s.State())
			}
			if s.Snapshot().LevelIndex != 0 {
				t.Error("failure must not advance the level")
			}
			if _, err := s.Start(twoAdvances()); !errors.Is(err, ErrAwaitingReset) {
				t.Errorf("expected ErrAwaitingReset, got %v", err)
			}
		})
	}
}

func TestLevelSession_RejectsReentrantAndEmpty(t *testing.T) {
	rec := &reportRecorder{}
	s := mustSession(t, threeLevelPack(), WithNotifier(rec))

	if _, err := s.Start(nil); !errors.Is(err, ErrReentrantExecution) || !errors.Is(err, ErrEmptyProgram) {
		t.Errorf("expected empty program rejection, got %v", err)
	}
	if s.State() != Ready {
		t.Errorf("rejection must not change state, got %v", s.State())
	}

	if _, err := s.Start(twoAdvances()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := s.Snapshot()
	if _, err := s.Start(twoAdvances()); !errors.Is(err, ErrReentrantExecution) || !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected run in progress rejection, got %v", err)
	}
	after := s.Snapshot()
	if after.Run.RunID != before.Run.RunID || after.State != Running {
		t.Error("rejected start must not replace the active run")
	}

	kinds := rec.kinds()
	if len(kinds) != 2 || kinds[0] != ReportRejected || kinds[1] != ReportRejected {
		t.Errorf("expected two rejection notices, got %v", kinds)
	}
	if after.LastReport != nil {
		t.Errorf("rejections should not replace the last report, got %+v", after.LastReport)
	}
}

func TestLevelSession_SeveralObservers(t *testing.T) {
	var first, second int
	s := mustSession(t, threeLevelPack(),
		WithObserver(engine.ObserverFunc(func(engine.Event) { first++ })),
		WithObserver(engine.ObserverFunc(func(engine.Event) { second++ })),
	)

	if _, err := s.Execute(context.Background(), twoAdvances(), nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if first == 0 || first != second {
		t.Errorf("both observers should see every event, got %d and %d", first, second)
	}
}

func TestLevelSession_ManualStepping(t *testing.T) {
	var events []engine.Event
	s := mustSession(t, threeLevelPack(), WithObserver(engine.ObserverFunc(func(ev engine.Event) {
		events = append(events, ev)
	})))

	if _, _, err := s.Step(); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("expected ErrNoActiveRun, got %v", err)
	}
	if _, err := s.Start(twoAdvances()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, report, err := s.Step()
	if err != nil || report != nil || res.Done {
		t.Fatalf("first step: %+v %+v %v", res, report, err)
	}
	snap := s.Snapshot()
	if snap.Player.X != 1 || snap.Score != 1 || snap.Board[0] != "S.E." {
		t.Errorf("treasure should be collected after the first step, got %+v", snap)
	}
	if snap.Run == nil || snap.Run.Executed != 1 {
		t.Errorf("snapshot should show the active run, got %+v", snap.Run)
	}

	s.Step()
	res, report, err = s.Step()
	if err != nil || !res.Done || report == nil {
		t.Fatalf("final step: %+v %+v %v", res, report, err)
	}
	if report.Kind != ReportLevelComplete {
		t.Errorf("expected level complete, got %v", report.Kind)
	}

	var outcomes int
	for _, ev := range events {
		if ev.Kind == engine.EventOutcome {
			outcomes++
		}
	}
	if outcomes != 1 {
		t.Errorf("session observer should see one outcome, got %d", outcomes)
	}
}

func TestLevelSession_AbortEmitsNoOutcome(t *testing.T) {
	rec := &reportRecorder{}
	var outcomes int
	s := mustSession(t, threeLevelPack(), WithNotifier(rec), WithObserver(engine.ObserverFunc(func(ev engine.Event) {
		if ev.Kind == engine.EventOutcome {
			outcomes++
		}
	})))

	if err := s.Abort(); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("expected ErrNoActiveRun, got %v", err)
	}

	s.Start(twoAdvances())
	if err := s.Abort(); err != nil {
		t.Fatalf("abort before any step failed: %v", err)
	}
	if s.State() != Ready {
		t.Errorf("untouched level should be ready again, got %v", s.State())
	}

	s.Start(twoAdvances())
	s.Step()
	if err := s.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if s.State() != AwaitingReset {
		t.Errorf("partially played level should await reset, got %v", s.State())
	}
	if outcomes != 0 || len(rec.kinds()) != 0 {
		t.Errorf("abort must not report an outcome, got %d outcomes and %v", outcomes, rec.kinds())
	}
}

func TestLevelSession_ResetRestoresLevel(t *testing.T) {
	s := mustSession(t, threeLevelPack())
	s.Execute(context.Background(), []engine.Command{engine.Advance}, nil)

	if s.State() != AwaitingReset || s.Score() != 1 {
		t.Fatalf("expected missed goal with 1 point, got %v score=%d", s.State(), s.Score())
	}

	report, err := s.Reset()
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if report.Kind != ReportReset {
		t.Errorf("expected reset report, got %v", report.Kind)
	}
	snap := s.Snapshot()
	if snap.State != Ready || snap.Board[0] != "STE." || snap.Player.X != 0 || snap.Run != nil {
		t.Errorf("reset should restore the level, got %+v", snap)
	}
	if snap.Score != 1 {
		t.Errorf("score should persist across retry by default, got %d", snap.Score)
	}
}

func TestLevelSession_ScoreResetOnRetryPolicy(t *testing.T) {
	pack := threeLevelPack()
	pack.ScoreResetOnRetry = true
	s := mustSession(t, pack)

	s.Execute(context.Background(), twoAdvances(), nil)
	if s.Score() != 1 {
		t.Fatalf("expected 1 point after first level, got %d", s.Score())
	}

	s.Execute(context.Background(), twoAdvances(), nil)
	s.Execute(context.Background(), twoAdvances(), nil)
	snap := s.Snapshot()
	if snap.LevelIndex != 2 || snap.State != AwaitingReset || snap.Score != 2 {
		t.Fatalf("expected to die on level three holding 2 points, got %+v", snap)
	}

	s.Reset()
	if s.Score() != 1 {
		t.Errorf("score should roll back to the level entry value, got %d", s.Score())
	}
}

func TestLevelSession_ResetCancelsRunningExecute(t *testing.T) {
	stepped := make(chan struct{})
	release := make(chan struct{})
	pacer := engine.PacerFunc(func(ctx context.Context, last engine.StepResult) error {
		if last.Step == 1 {
			close(stepped)
			<-release
		}
		return nil
	})
	s := mustSession(t, threeLevelPack(), WithPacer(pacer))

	done := make(chan error, 1)
	go func() {
		_, err := s.Execute(context.Background(), twoAdvances(), nil)
		done <- err
	}()

	<-stepped
	if _, err := s.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, engine.ErrRunCancelled) {
		t.Errorf("expected ErrRunCancelled, got %v", err)
	}
	if snap := s.Snapshot(); snap.State != Ready || snap.Player.X != 0 {
		t.Errorf("reset level should be untouched by the cancelled run, got %+v", snap)
	}
}

func TestLevelSession_ExecuteContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pacer := engine.PacerFunc(func(ctx context.Context, last engine.StepResult) error {
		cancel()
		return ctx.Err()
	})
	s := mustSession(t, threeLevelPack(), WithPacer(pacer))

	if _, err := s.Execute(ctx, twoAdvances(), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.State() != AwaitingReset {
		t.Errorf("expected awaiting_reset after cancelled run, got %v", s.State())
	}
}

func TestLevelSession_LogsExecutingSteps(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := mustSession(t, threeLevelPack(), WithLogger(zap.New(core)))

	s.Execute(context.Background(), []engine.Command{engine.Advance, engine.TurnLeft}, nil)

	if n := logs.FilterMessage("executing").Len(); n != 2 {
		t.Errorf("expected 2 executing entries, got %d", n)
	}
	finished := logs.FilterMessage("run finished").All()
	if len(finished) != 1 || finished[0].ContextMap()["outcome"] != "goal_missed" {
		t.Errorf("expected one run finished entry, got %v", finished)
	}
}

func TestLevelSession_MessagesFollowPack(t *testing.T) {
	pack := threeLevelPack()
	pack.Messages.Treasure = "Gold! Now {score}"
	s := mustSession(t, pack)

	s.Start([]engine.Command{engine.Advance, engine.TurnLeft})
	s.Step()
	if msg := s.Snapshot().Message; msg != "Gold! Now 1" {
		t.Errorf("expected custom treasure message, got %q", msg)
	}
	s.Step()
	if msg := s.Snapshot().Message; msg != "Executing: turn_left..." {
		t.Errorf("expected executing notice, got %q", msg)
	}
}

func TestLevelSession_MessagesWithoutPlaceholders(t *testing.T) {
	pack := threeLevelPack()
	pack.Messages.Treasure = "Shiny!"
	pack.Messages.Executing = "Go go go"
	s := mustSession(t, pack)

	s.Start([]engine.Command{engine.Advance, engine.TurnLeft})
	s.Step()
	if msg := s.Snapshot().Message; msg != "Shiny!" {
		t.Errorf("expected treasure message verbatim, got %q", msg)
	}
	s.Step()
	if msg := s.Snapshot().Message; msg != "Go go go" {
		t.Errorf("expected executing message verbatim, got %q", msg)
	}
}

func TestSnapshot_RenderBoard(t *testing.T) {
	snap := &Snapshot{
		Board:  []string{"S.TE", "...."},
		Player: engine.PlayerState{X: 1, Y: 0, Facing: engine.East},
	}
	rows := snap.RenderBoard()
	if rows[0] != "S>TE" {
		t.Errorf("expected player marker, got %q", rows[0])
	}
	if snap.Board[0] != "S.TE" {
		t.Error("RenderBoard must not modify the snapshot board")
	}
}
