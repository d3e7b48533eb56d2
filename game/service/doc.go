// Package service provides the business logic layer for Command Quest.
//
// The service package implements:
//   - Multi-session game management
//   - Level pack loading and saving
//   - Program parsing and execution, whole or step by step
//   - Forwarding of run events and session reports to transports
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages level pack loading and validation.
// EventSink receives live run events, typically the websocket hub.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the game engine, providing session isolation and level pack management.
// Each session owns its own session.LevelSession with independent state.
//
// Usage:
//
//	sessionMgr := session.NewManager(logger)
//	configMgr, _ := config.NewManager("levels", logger)
//	gameService := service.NewGameService(sessionMgr, configMgr,
//		service.WithLogger(logger),
//		service.WithStepDelay(300*time.Millisecond),
//		service.WithEventSink(hub))
//
//	info, err := gameService.CreateSession(ctx, "tutorial")
//	if err != nil {
//		return err
//	}
//
//	result, err := gameService.RunProgram(ctx, info.ID, []string{"advance", "turn_left"})
//
// Errors:
//
// Errors wrap the sentinel values of this package, package session and
// package engine, so transports classify them with errors.Is.
package service
