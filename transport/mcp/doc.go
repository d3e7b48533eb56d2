// Package mcp exposes the game to AI agents over the Model Context Protocol.
//
// The Client is a thin proxy: every tool call becomes one or more REST
// calls against a running server, and the JSON responses are rendered as
// plain text with an ASCII board. Tools:
//   - list_packs, create_session, get_session, list_sessions
//   - level_state: board, player, score and offered commands
//   - run_program: run a whole program and report the outcome
//   - step_program: start a run and/or execute it one step at a time
//   - abort_run, reset_level
//   - game_instructions: rules, tile legend and coordinate conventions
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080", logger)
//	server.ServeStdio(client.GetMCPServer())
package mcp
