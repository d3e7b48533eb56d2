// Package session orchestrates play of a level pack and keeps the registry
// of live sessions.
//
// The session package implements:
//   - LevelSession: level index, cumulative score and the running guard
//   - Level advance on a win, game over or retry on a failure
//   - Reset that re-derives the grid and player from the level definition
//   - Thread-safe session storage keyed by short random ids
//   - Session cleanup and expiration
//
// Core Types:
//
// LevelSession hands its grid and player state to one engine.Run at a time
// and turns the run's outcome into a Report. Manager stores Sessions, each
// wrapping a LevelSession with creation and last access times.
//
// Runs:
//
// A run can be driven in two ways. Execute runs a whole program, waiting on
// the configured engine.Pacer between steps. Start and Step let a caller
// resume the run one command at a time. Abort, Reset and context
// cancellation end a run without reporting an outcome.
//
// Usage:
//
//	manager := session.NewManager(logger)
//
//	sess, err := manager.Create("", engine.DefaultPack(),
//		session.WithNotifier(notifier),
//		session.WithPacer(engine.DelayPacer(300*time.Millisecond)))
//	if err != nil {
//		return err
//	}
//
//	report, err := sess.Level.Execute(ctx, program, nil)
//	if errors.Is(err, session.ErrReentrantExecution) {
//		// a run is already going, or the program is empty
//	}
//
// Concurrency:
//
// LevelSession guards its state with a mutex that is released while the
// pacer waits, so Snapshot, Abort and Reset stay responsive during a run.
// Observers and notifiers are called without the lock held.
package session
