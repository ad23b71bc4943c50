// ABOUTME: Entry point for the weather-mcp server
// ABOUTME: Serves the MCP endpoint and weather widget, plus health and config helpers

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
	"syscall"
	"time"

	"github.com/fatih/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/weather-mcp/internal/config"
	"github.com/2389/weather-mcp/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _   _                                            
__      _____  __ _| |_| |__   ___ _ __      _ __ ___   ___ _ __  
\ \ /\ / / _ \/ _' | __| '_ \ / _ \ '__|____| '_ ' _ \ / __| '_ \ 
 \ V  V /  __/ (_| | |_| | | |  __/ | |_____| | | | | | (__| |_) |
  \_/\_/ \___|\__,_|\__|_| |_|\___|_|       |_| |_| |_|\___| .__/ 
                                                            |_|    
`

// probeTimeout bounds the health and sessions commands.
const probeTimeout = 5 * time.Second

func usage() {
	fmt.Println("Usage: weather-mcp <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Start the MCP server")
	fmt.Println("  init       Write a starter config file")
	fmt.Println("  health     Check server health")
	fmt.Println("  sessions   List the active MCP sessions")
	fmt.Println("  version    Print the version")
	fmt.Println()
	fmt.Printf("Config: $%s, or %s\n", config.EnvConfigPath, config.DefaultPath())
}

func main() {
	if len(os.Args) < 2 {
		usage()
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
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx)
	case "version", "--version", "-v":
		fmt.Println(version)
	case "help", "--help", "-h":
		usage()
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
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	if _, statErr := os.Stat(configPath); statErr == nil {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Printf("Config:    %s\n", gray.Sprint("(defaults)"))
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("MCP:       %s/mcp\n", cfg.Server.PublicURL)
	green.Print("    ▶ ")
	fmt.Printf("Widget:    %s\n", cfg.WidgetURL())
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting weather-mcp",
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
		"public_url", cfg.Server.PublicURL,
	)

	srv, err := server.New(cfg, logger, version)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runInit() error {
	path := config.DefaultPath()
	if len(os.Args) > 2 {
		path = os.Args[2]
	}

	if err := config.WriteSample(path); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			color.Yellow("Config already exists at %s", path)
			return nil
		}
		return err
	}

	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status, _, err := probe(ctx, localURL(cfg.Server.HTTPAddr, "/health"))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}

	if cfg.Server.GRPCAddr != "" {
		if err := checkGRPCHealth(ctx, localAddr(cfg.Server.GRPCAddr)); err != nil {
			return err
		}
	}

	fmt.Println("healthy")
	return nil
}

func runSessions(ctx context.Context) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, body, err := probe(ctx, localURL(cfg.Server.HTTPAddr, "/health/ready?verbose=1"))
	if err != nil {
		return fmt.Errorf("sessions check failed: %w", err)
	}

	var report server.ReadyReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return fmt.Errorf("decoding readiness report: %w", err)
	}

	printSessions(os.Stdout, report, time.Now())
	return nil
}

// printSessions writes the readiness status and one line per session, oldest first.
func printSessions(w io.Writer, report server.ReadyReport, now time.Time) {
	fmt.Fprintf(w, "%s: %d active sessions\n", report.Status, len(report.Sessions))
	for _, info := range report.Sessions {
		age := now.Sub(info.CreatedAt).Truncate(time.Second)
		fmt.Fprintf(w, "  %s  %s  (%s)\n", info.ID, info.CreatedAt.Format(time.RFC3339), age)
	}
}

// probe performs a GET and returns the status and body.
func probe(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

// checkGRPCHealth asks the gRPC health service for the overall status.
func checkGRPCHealth(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dialing gRPC health: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("gRPC health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("gRPC unhealthy: %s", resp.GetStatus())
	}
	return nil
}

// localAddr turns a listen address such as ":3000" into one a client can dial.
func localAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func localURL(addr, path string) string {
	return "http://" + localAddr(addr) + path
}
