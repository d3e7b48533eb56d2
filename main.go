// Command command-quest starts the Command Quest game server.
//
// It supports two modes:
//  1. "server" (default) runs the HTTP server exposing the REST API, the
//     websocket feed and an /mcp HTTP endpoint
//  2. "stdio-mcp" runs an MCP stdio server, reusing a local API server when
//     one answers and otherwise starting an internal one
//
// Every flag has an environment fallback, and a .env file in the working
// directory is loaded first.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/command-quest/api"
	"github.com/wricardo/command-quest/game/config"
	"github.com/wricardo/command-quest/game/service"
	"github.com/wricardo/command-quest/game/session"
	"github.com/wricardo/command-quest/logging"
	"github.com/wricardo/command-quest/transport/mcp"
	"github.com/wricardo/command-quest/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Command Quest Server"
)

const (
	sessionMaxAge   = 24 * time.Hour
	cleanupInterval = time.Hour
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "command-quest",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP server port",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "host",
				Value:   "localhost",
				Usage:   "HTTP server host",
				Sources: cli.EnvVars("HOST"),
			},
			&cli.StringFlag{
				Name:    "levels-dir",
				Value:   "levels",
				Usage:   "directory containing level pack JSON files",
				Sources: cli.EnvVars("LEVELS_DIR"),
			},
			&cli.StringFlag{
				Name:    "default-pack",
				Usage:   "level pack used when a session names none",
				Sources: cli.EnvVars("DEFAULT_PACK"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level: debug, info, warn, error",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "also write JSON logs to this file, rotated",
				Sources: cli.EnvVars("LOG_FILE"),
			},
			&cli.DurationFlag{
				Name:    "step-delay",
				Value:   300 * time.Millisecond,
				Usage:   "pause between animated steps of a whole-program run",
				Sources: cli.EnvVars("STEP_DELAY"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "enable an ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "custom ngrok domain",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "run the HTTP server with REST API, websocket and MCP endpoint",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "run an MCP stdio server backed by a local HTTP API",
				Action:  runStdioMCP,
			},
		},
	}
}

// main loads .env, then runs the selected mode until SIGINT or SIGTERM
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Console output always goes to
// stderr so it never mixes with the MCP stdio stream.
func newLogger(cmd *cli.Command) (*zap.Logger, func() error, error) {
	return logging.New(logging.Options{
		Level:   cmd.String("log-level"),
		File:    cmd.String("log-file"),
		Console: os.Stderr,
	})
}

// services bundles what both modes need
type services struct {
	game     service.GameService
	sessions *session.Manager
	hub      *websocket.Hub
}

// initializeServices wires the level pack and session managers, the
// websocket hub and the game service
func initializeServices(cmd *cli.Command, logger *zap.Logger) (*services, error) {
	configManager, err := config.NewManager(cmd.String("levels-dir"), logger.Named("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to create level pack manager: %w", err)
	}
	if name := cmd.String("default-pack"); name != "" {
		if err := configManager.SetDefault(name); err != nil {
			return nil, fmt.Errorf("failed to set default pack %q: %w", name, err)
		}
	}

	sessionManager := session.NewManager(logger.Named("session"))
	hub := websocket.NewHub(logger.Named("websocket"))

	gameService := service.NewGameService(sessionManager, configManager,
		service.WithLogger(logger.Named("service")),
		service.WithStepDelay(cmd.Duration("step-delay")),
		service.WithEventSink(hub),
	)

	return &services{game: gameService, sessions: sessionManager, hub: hub}, nil
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within maxAge
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, interval, maxAge time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(maxAge); removed > 0 {
				logger.Info("cleaned up expired sessions", zap.Int("removed", removed))
			}
		}
	}
}

// mcpHandler serves single JSON-RPC messages over HTTP POST
func mcpHandler(mcpServer *server.MCPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		}
	}
}

// newRouter mounts the API at the root and the MCP endpoint at /mcp
func newRouter(svc *services, baseURL string, logger *zap.Logger) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", api.NewServer(svc.game, svc.hub, logger.Named("api")))

	mcpClient := mcp.NewClient(baseURL, logger.Named("mcp"))
	mainRouter.Handle("/mcp", mcpHandler(mcpClient.GetMCPServer()))
	return mainRouter
}

// runServer starts the HTTP server and, when enabled, an ngrok tunnel
// serving the same router. It returns after ctx is cancelled and the
// server has drained.
func runServer(ctx context.Context, cmd *cli.Command) error {
	logger, closeLog, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	svc, err := initializeServices(cmd, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go svc.hub.Run(ctx)
	go sessionCleanupRoutine(ctx, svc.sessions, cleanupInterval, sessionMaxAge, logger)

	addr := net.JoinHostPort(cmd.String("host"), fmt.Sprint(cmd.Int("port")))
	handler := newRouter(svc, "http://"+addr, logger)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting", zap.String("app", AppName), zap.String("version", Version))

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening",
			zap.String("api", "http://"+addr+"/api"),
			zap.String("websocket", "ws://"+addr+"/ws?session=<session_id>"),
			zap.String("mcp", "http://"+addr+"/mcp"))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler, logger.Named("ngrok"))
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("server stopped")

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	default:
		return nil
	}
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler, logger *zap.Logger) {
	if authToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	srv := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("ngrok tunnel established", zap.String("url", tun.URL()))
	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// apiAvailable reports whether a game API answers its health check at baseURL
func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startInternalAPI serves the API on a random loopback port and returns
// its base URL
func startInternalAPI(ctx context.Context, svc *services, logger *zap.Logger) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to get available port: %w", err)
	}

	httpServer := &http.Server{Handler: api.NewServer(svc.game, svc.hub, logger.Named("api"))}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("internal HTTP server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	return "http://" + listener.Addr().String(), nil
}

// runStdioMCP serves MCP over stdin/stdout. It proxies to an API server
// already running on --host/--port, or to an internal one.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	logger, closeLog, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	baseURL := "http://" + net.JoinHostPort(cmd.String("host"), fmt.Sprint(cmd.Int("port")))
	if apiAvailable(ctx, baseURL) {
		logger.Info("using external API server", zap.String("url", baseURL))
	} else {
		svc, err := initializeServices(cmd, logger)
		if err != nil {
			return err
		}
		go svc.hub.Run(ctx)
		go sessionCleanupRoutine(ctx, svc.sessions, cleanupInterval, sessionMaxAge, logger)

		baseURL, err = startInternalAPI(ctx, svc, logger)
		if err != nil {
			return err
		}
		logger.Info("using internal API server", zap.String("url", baseURL))
	}

	mcpClient := mcp.NewClient(baseURL, logger.Named("mcp"))
	logger.Info("MCP stdio server ready")
	return server.ServeStdio(mcpClient.GetMCPServer())
}
