// Package api serves the game over HTTP with gorilla/mux.
//
// Sessions:
//   - POST   /api/sessions                  create ({"pack": "classic"}, empty for the default)
//   - GET    /api/sessions                  list (?sort=created|accessed&order=asc|desc&limit=n)
//   - GET    /api/sessions/{id}             session info with a state snapshot
//   - DELETE /api/sessions/{id}             delete, cancelling any run
//   - GET    /api/sessions/{id}/state       snapshot, or the ASCII board with ?format=text
//
// Runs:
//   - POST /api/sessions/{id}/run           run a whole program: {"commands": ["advance", "turn_left"]}
//   - POST /api/sessions/{id}/run/start     start a program without stepping it
//   - POST /api/sessions/{id}/run/step      apply one command (the last step is the goal check)
//   - POST /api/sessions/{id}/run/abort     cancel the active run
//   - POST /api/sessions/{id}/reset         reload the level; restarts a finished campaign
//
// Level packs:
//   - GET  /api/packs                       list
//   - POST /api/packs                       save (?id= names the file, default is the slugged pack name)
//   - GET  /api/packs/{name}                full pack
//   - GET  /api/packs/{name}/solutions      shortest winning program per level (?collect=all)
//
// Other:
//   - GET /api/health
//   - GET /ws?session={id}                  live events, reports and snapshots
//
// Errors are JSON objects {"error": "...", "code": n}. Unknown sessions and
// packs are 404, rejected runs (already running, empty program, awaiting
// reset, campaign complete, nothing to step) are 409, and malformed
// programs or packs are 400.
package api
