// ABOUTME: Entry point for the finflow-gateway session server
// ABOUTME: Fronts the finflow backend with session auth and route guarding

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/finflow/finflow-gateway/internal/auth"
	"github.com/finflow/finflow-gateway/internal/config"
	"github.com/finflow/finflow-gateway/internal/gateway"
	"github.com/finflow/finflow-gateway/internal/reaper"
	"github.com/finflow/finflow-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
   __ _        __ _
  / _(_)_ __  / _| | _____      __
 | |_| | '_ \| |_| |/ _ \ \ /\ / /
 |  _| | | | |  _| | (_) \ V  V /
 |_| |_|_| |_|_| |_|\___/ \_/\_/   gateway
`

// getConfigPath returns the path to the gateway config file.
// Priority: FINFLOW_CONFIG env var > XDG_CONFIG_HOME/finflow/gateway.yaml > ~/.config/finflow/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FINFLOW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "finflow", "gateway.yaml")
}

// getDataPath returns the path to the finflow data directory.
// Priority: XDG_DATA_HOME/finflow > ~/.local/share/finflow
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "finflow")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: finflow-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  reap     Delete expired session tokens and exit")
		fmt.Println("  health   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "reap":
		err = runReap(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Backend:  %s\n", cfg.Backend.BaseURL)

	if cfg.Frontend.UpstreamURL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Frontend: %s\n", cfg.Frontend.UpstreamURL)
	}

	green.Print("    ▶ ")
	fmt.Printf("Identity: ")
	if cfg.Auth.OIDCIssuerURL != "" {
		cyan.Println(cfg.Auth.OIDCIssuerURL)
	} else {
		yellow.Println("shared-secret (dev)")
	}

	fmt.Println()

	logger.Info("starting finflow-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"backend", cfg.Backend.BaseURL,
	)

	// Open the identity store
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg, st, verifier)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	// Expired-token reaper runs alongside the server and stops with it
	go reaper.New(st, cfg.Reaper.Interval).Run(ctx)

	return gw.Run(ctx)
}

// newVerifier picks the identity-token verifier from configuration: a
// real OIDC provider when an issuer is configured, otherwise the
// shared-secret verifier for development setups.
func newVerifier(ctx context.Context, cfg *config.Config) (auth.IDTokenVerifier, error) {
	if cfg.Auth.OIDCIssuerURL != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuerURL, cfg.Auth.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("creating OIDC verifier: %w", err)
		}
		return verifier, nil
	}
	return auth.NewStaticVerifier([]byte(cfg.Auth.DevIDPSecret)), nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runReap deletes expired session tokens once and exits. Useful for
// cron setups that prefer an external schedule over the in-process
// reaper.
func runReap(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(setupLogger(cfg.Logging))

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	removed, err := reaper.New(st, cfg.Reaper.Interval).Sweep(ctx)
	if err != nil {
		return fmt.Errorf("reaping expired tokens: %w", err)
	}

	fmt.Printf("removed %d expired session token(s)\n", removed)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("finflow-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Backend
	fmt.Println("\n--- Backend Configuration ---")
	backendURL := prompt(reader, "Backend base URL", "http://localhost:3000")
	frontendURL := prompt(reader, "Frontend upstream URL (empty to disable)", "")

	// Identity provider
	fmt.Println("\n--- Identity Provider ---")
	oidcIssuer := prompt(reader, "OIDC issuer URL (empty for dev shared secret)", "")
	var oidcClientID, devSecret string
	if oidcIssuer != "" {
		oidcClientID = prompt(reader, "OIDC client ID", "")
	} else {
		devSecret = prompt(reader, "Dev identity-provider secret", randomSecret())
	}

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Session secret is always generated fresh
	sessionSecret := randomSecret()

	var b strings.Builder
	b.WriteString("# finflow-gateway configuration\n")
	b.WriteString("# Generated by finflow-gateway init\n\n")
	fmt.Fprintf(&b, "server:\n  http_addr: %q\n\n", httpAddr)
	fmt.Fprintf(&b, "auth:\n  session_secret: %q\n  session_ttl: \"24h\"\n", sessionSecret)
	if oidcIssuer != "" {
		fmt.Fprintf(&b, "  oidc_issuer_url: %q\n  oidc_client_id: %q\n", oidcIssuer, oidcClientID)
	} else {
		fmt.Fprintf(&b, "  dev_idp_secret: %q\n", devSecret)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "backend:\n  base_url: %q\n  timeout: \"10s\"\n\n", backendURL)
	if frontendURL != "" {
		fmt.Fprintf(&b, "frontend:\n  upstream_url: %q\n\n", frontendURL)
	}
	fmt.Fprintf(&b, "database:\n  path: %q\n\n", dbPath)
	b.WriteString("reaper:\n  interval: \"24h\"\n\n")
	b.WriteString("logging:\n  level: \"info\"\n  format: \"text\"\n")

	// Create parent directories for config and database
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Println()
	green.Printf("  ✓ Created config: %s\n", outputFile)
	fmt.Println()
	fmt.Println("  Next: finflow-gateway serve")
	fmt.Println()

	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	answer, err := reader.ReadString('\n')
	if err != nil {
		return defaultValue
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultValue
	}
	return answer
}

func randomSecret() string {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		panic(fmt.Sprintf("generating secret: %v", err))
	}
	return base64.StdEncoding.EncodeToString(secretBytes)
}
