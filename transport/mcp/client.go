package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/service"
	"github.com/wricardo/command-quest/game/session"
	"github.com/wricardo/command-quest/logging"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
	logger     *zap.Logger
}

// NewClient creates a new MCP client that calls the REST API at baseURL
func NewClient(baseURL string, logger *zap.Logger) *Client {
	logger = logging.OrNop(logger)
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// A paced run_program takes one step delay per command
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Command Quest",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Command Quest - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Write a program of movement commands that walks the player from the start
tile to a goal tile. The program runs command by command; the level is won
only if the player stands on a goal when the program ends.

AVAILABLE TOOLS:
- list_packs: List level packs
- create_session: Start playing a pack
- get_session / list_sessions: Inspect sessions
- level_state: Board, player, score and offered commands
- run_program: Run a whole program - requires intent explanation
- step_program: Start a program and/or execute it one command at a time
- abort_run: Cancel a stepped run
- reset_level: Retry the current level after a failure
- game_instructions: Full rules and tile legend`),
	)

	c.registerTools()
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func commandsProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "string",
			"enum": []string{"advance", "turn_right", "turn_left"},
		},
		"description": description,
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_packs",
		Description: "List the available level packs",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPacks)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session playing a level pack",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"pack": map[string]interface{}{
					"type":        "string",
					"description": "Level pack to play (optional, defaults to the tutorial)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "level_state",
		Description: "Show the current level: ASCII board, player position and facing, score and offered commands",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleLevelState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "run_program",
		Description: "Run a complete program on the current level and report the outcome",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"commands":   commandsProperty("Program to run, in order"),
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the route this program should take (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id", "commands"},
		},
	}, c.handleRunProgram)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step_program",
		Description: "Execute a program one command at a time. Pass commands to start a new run; omit them to continue the active run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"commands":   commandsProperty("Program to start (optional)"),
				"steps": map[string]interface{}{
					"type":        "number",
					"description": "How many steps to execute (default 1)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStepProgram)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "abort_run",
		Description: "Cancel the active stepped run",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleAbortRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_level",
		Description: "Reload the current level after a failed run (restarts a finished campaign)",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleResetLevel)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the rules, tile legend and coordinate conventions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

func sessionPath(args map[string]interface{}, suffix string) (string, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + url.PathEscape(id) + suffix, nil
}

func stringSlice(v interface{}) []string {
	raw, _ := v.([]interface{})
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Tool handlers

func (c *Client) handleListPacks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var packs []service.PackInfo
	if err := c.apiCall(ctx, "GET", "/api/packs", nil, &packs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Level Packs:\n\n")
	for _, p := range packs {
		fmt.Fprintf(&b, "• %s (%d levels)\n  %s\n", p.PackID, p.Levels, p.Name)
		if p.Description != "" {
			fmt.Fprintf(&b, "  %s\n", p.Description)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	pack, _ := args["pack"].(string)

	body := map[string]string{}
	if pack != "" {
		body["pack"] = pack
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nPack: %s\n\n", info.ID, info.PackName)
	if info.State != nil {
		result += formatSnapshot(info.State)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&b, "- %s (Pack: %s, Created: %s", s.ID, s.PackName, s.CreatedAt.Format("15:04:05"))
		if s.State != nil {
			fmt.Fprintf(&b, ", Level %d/%d, Score %d, %s", s.State.LevelIndex+1, s.State.LevelCount, s.State.Score, s.State.State)
		}
		b.WriteString(")\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "GET", path, nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleLevelState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state session.Snapshot
	if err := c.apiCall(ctx, "GET", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSnapshot(&state)), nil
}

func (c *Client) handleRunProgram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/run")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// intent is not forwarded; it only helps the caller reason
	commands := stringSlice(args["commands"])

	var result service.RunResult
	if err := c.apiCall(ctx, "POST", path, map[string][]string{"commands": commands}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRunResult(&result)), nil
}

func (c *Client) handleStepProgram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	if _, err := sessionPath(args, ""); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	steps := 1
	if n, ok := args["steps"].(float64); ok && n > 1 {
		steps = int(n)
	}

	var b strings.Builder
	if _, ok := args["commands"]; ok {
		path, _ := sessionPath(args, "/run/start")
		var started service.RunResult
		if err := c.apiCall(ctx, "POST", path, map[string][]string{"commands": stringSlice(args["commands"])}, &started); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fmt.Fprintf(&b, "Run started with %d commands\n", len(stringSlice(args["commands"])))
		writeNotOffered(&b, started.NotOffered)
	}

	path, _ := sessionPath(args, "/run/step")
	var last service.StepResult
	for i := 0; i < steps; i++ {
		if err := c.apiCall(ctx, "POST", path, nil, &last); err != nil {
			return mcp.NewToolResultError(b.String() + err.Error()), nil
		}
		b.WriteString(formatStep(&last.Step))
		if last.Step.Done {
			break
		}
	}

	if last.Report != nil {
		b.WriteString("\n")
		b.WriteString(formatReport(last.Report))
	}
	if last.State != nil {
		b.WriteString("\n")
		b.WriteString(formatSnapshot(last.State))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleAbortRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/run/abort")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state session.Snapshot
	if err := c.apiCall(ctx, "POST", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Run aborted.\n\n" + formatSnapshot(&state)), nil
}

func (c *Client) handleResetLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/reset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		Message string            `json:"message"`
		State   *session.Snapshot `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := "Level reset.\n\n"
	if response.State != nil {
		result += formatSnapshot(response.State)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `Command Quest - Complete Instructions

GAME OBJECTIVE:
Assemble a program from the commands a level offers and run it. The player
must be standing on a goal tile (E) when the program ends. Reaching a goal
in the middle of the program does not count; the remaining commands still run.

COMMANDS:
• advance - move one tile in the facing direction
• turn_right - rotate clockwise, staying on the same tile
• turn_left - rotate counter-clockwise, staying on the same tile
Each level offers a subset. Commands a level does not offer are still
executed if you send them, and the result lists them.

COORDINATES:
• x grows to the right, y grows with the row number
• The board is printed row 0 first, so NORTH (y+1) points DOWN the page
  and SOUTH (y-1) points UP the page
• Player markers: v facing north, > east, ^ south, < west

TILE LEGEND:
• S - Start
• E - Goal
• T - Treasure, worth one point, collected once
• # - Wall, scenery only: the player walks over it
• M - Enemy, touching it ends the run
• X - Trap, touching it ends the run
• . - Empty

HOW A RUN ENDS:
• Advancing off the board stops the program immediately (game over)
• Stepping onto an enemy or trap stops the program immediately (game over)
• Finishing the program away from a goal means try again
• Finishing on a goal completes the level and loads the next one

AFTER A FAILED RUN:
The session waits for reset_level before it accepts another program. Some
packs also give back the points collected during the failed attempt.

STEPPING:
step_program starts a run and executes one command per step. The step after
the last command is the goal check, so a program of n commands takes n+1
steps. Only one run may be active per session.

STRATEGY:
• Read the facing marker before planning the first turn
• Count tiles along each leg, then add the turns between legs
• Detour around enemies and traps; walls are safe to cross
• Use step_program when a run fails in a way you do not understand`

func formatSessionInfo(info *service.SessionInfo) string {
	result := fmt.Sprintf("Session: %s\nPack: %s\nCreated: %s\nLast Accessed: %s\n\n",
		info.ID, info.PackName,
		info.CreatedAt.Format(time.RFC3339), info.LastAccessedAt.Format(time.RFC3339))
	if info.State != nil {
		result += formatSnapshot(info.State)
	}
	return result
}

func formatSnapshot(state *session.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Level %d/%d: %s\n", state.LevelIndex+1, state.LevelCount, state.LevelName)
	fmt.Fprintf(&b, "State: %s\n", state.State)
	fmt.Fprintf(&b, "Position: (%d,%d) facing %s\n", state.Player.X, state.Player.Y, state.Player.Facing)
	fmt.Fprintf(&b, "Score: %d\n", state.Score)
	fmt.Fprintf(&b, "Commands offered: %s\n", joinCommands(state.AvailableCommands))
	if state.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", state.Message)
	}
	if state.TutorialMessage != "" {
		fmt.Fprintf(&b, "Hint: %s\n", state.TutorialMessage)
	}

	switch state.State {
	case session.AwaitingReset:
		b.WriteString("\n💀 Run failed - call reset_level to try again\n")
	case session.Complete:
		b.WriteString("\n🎉 ALL LEVELS COMPLETE!\n")
	}

	b.WriteString("\nBoard (row 0 first, north is down):\n")
	for y, row := range state.RenderBoard() {
		fmt.Fprintf(&b, "%2d %s\n", y, row)
	}
	return b.String()
}

func formatRunResult(result *service.RunResult) string {
	var b strings.Builder
	if result.Run != nil {
		fmt.Fprintf(&b, "Executed %d/%d commands in %d steps\n",
			result.Run.Executed, result.Run.Requested, result.Run.Steps)
		for _, ev := range result.Run.Events {
			if line := formatEvent(ev); line != "" {
				b.WriteString(line)
			}
		}
	}
	writeNotOffered(&b, result.NotOffered)
	if result.Report != nil {
		b.WriteString("\n")
		b.WriteString(formatReport(result.Report))
	}
	if result.State != nil {
		b.WriteString("\n")
		b.WriteString(formatSnapshot(result.State))
	}
	return b.String()
}

func formatStep(step *engine.StepResult) string {
	if step.Command == nil {
		return fmt.Sprintf("Step %d: goal check at (%d,%d) -> %s\n",
			step.Step, step.State.X, step.State.Y, step.Outcome)
	}
	line := fmt.Sprintf("Step %d: %s -> (%d,%d) facing %s", step.Step, step.Command,
		step.State.X, step.State.Y, step.State.Facing)
	if step.Done {
		line += " -> " + step.Outcome.String()
	}
	return line + "\n"
}

func formatEvent(ev engine.Event) string {
	switch ev.Kind {
	case engine.EventTile:
		if ev.Position != nil && ev.Tile != nil {
			return fmt.Sprintf("  tile (%d,%d) is now %s\n", ev.Position.X, ev.Position.Y, ev.Tile)
		}
	case engine.EventScore:
		return fmt.Sprintf("  +%d point\n", ev.Delta)
	case engine.EventOutcome:
		if ev.Outcome != nil {
			return fmt.Sprintf("  outcome: %s\n", ev.Outcome)
		}
	}
	return ""
}

func formatReport(report *session.Report) string {
	var icon string
	switch report.Kind {
	case session.ReportLevelComplete:
		icon = "✓"
	case session.ReportGameComplete:
		icon = "🎉"
	case session.ReportGameOver:
		icon = "💀"
	default:
		icon = "✗"
	}
	result := fmt.Sprintf("%s %s: %s\nScore: %d (%+d this run)\n",
		icon, report.Kind, report.Message, report.Score, report.ScoreDelta)
	if report.NextLevel != nil {
		result += fmt.Sprintf("Next level: %d\n", *report.NextLevel+1)
	}
	return result
}

func writeNotOffered(b *strings.Builder, cmds []engine.Command) {
	if len(cmds) > 0 {
		fmt.Fprintf(b, "⚠ Not offered by this level (executed anyway): %s\n", joinCommands(cmds))
	}
}

func joinCommands(cmds []engine.Command) string {
	if len(cmds) == 0 {
		return "none"
	}
	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		names[i] = cmd.String()
	}
	return strings.Join(names, ", ")
}
