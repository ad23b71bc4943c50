// ABOUTME: Tailscale tsnet listeners used instead of TCP when tailscale is enabled
// ABOUTME: Resolves state dir and auth key, then listens on the tailnet

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/weather-mcp/internal/config"
)

const (
	tailscaleHTTPPort = ":80"
	tailscaleGRPCPort = ":50051"
)

// resolveTailscaleStateDir returns the node state directory. The default
// lives under $XDG_DATA_HOME, falling back to ~/.local/share.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "weather-mcp", "tailscale"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "weather-mcp", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners starts a tsnet node and listens on it for HTTP and, when configured, gRPC.
func (s *Server) setupTailscaleListeners(ctx context.Context) (httpLn, grpcLn net.Listener, err error) {
	tsCfg := s.config.Tailscale

	if addr := s.config.Server.HTTPAddr; addr != "" && addr != config.DefaultHTTPAddr {
		s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
	}

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.applyTailscaleStatus(tsCfg.Hostname, status)

	httpLn, err = s.tsnetServer.Listen("tcp", tailscaleHTTPPort)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}

	if s.grpcServer != nil {
		grpcLn, err = s.tsnetServer.Listen("tcp", tailscaleGRPCPort)
		if err != nil {
			_ = httpLn.Close()
			_ = s.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}

	return httpLn, grpcLn, nil
}

// tailnetPublicURL is the base URL the tsnet HTTP listener is reachable at.
func tailnetPublicURL(dnsName string) string {
	return "http://" + dnsName
}

// applyTailscaleStatus logs the node status. When server.public_url was left
// at its default, widget links are moved onto the node's tailnet name.
func (s *Server) applyTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	if dnsName == "" || strings.Contains(s.config.Server.PublicURL, dnsName) {
		return
	}

	if s.config.Server.PublicURL == config.DefaultPublicURL {
		s.config.Server.PublicURL = tailnetPublicURL(dnsName)
		if err := s.tool.SetWidgetURL(s.config.WidgetURL()); err != nil {
			s.logger.Warn("updating widget URL for tailnet", "error", err)
			return
		}
		s.logger.Info("widget links use the tailnet name", "public_url", s.config.Server.PublicURL)
		return
	}

	s.logger.Warn("server.public_url does not name the tailnet host; widget links may be unreachable",
		"public_url", s.config.Server.PublicURL,
		"dns_name", dnsName,
	)
}
