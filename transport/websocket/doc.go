// Package websocket pushes live session output to browser clients.
//
// A Hub keeps the connected clients of each session and fans out three
// kinds of JSON message:
//   - event: one engine side effect (player moved, tile changed, score, outcome)
//   - report: the session's verdict on a finished run
//   - state: a full session snapshot, sent on connect and after resets
//
// Hub satisfies service.EventSink, so the game service can forward every
// session's events without knowing about connections:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	svc := service.NewGameService(sessions, packs, service.WithEventSink(hub))
//
// Clients connect with /ws?session=<id>. They only listen; anything they
// send is discarded. Publishing never blocks a run: when the hub queue is
// full the message is dropped with a warning, and a client whose buffer is
// full is disconnected.
package websocket
