package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"github.com/tgoai/tgo-sessionwatch/internal/app"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/config"
	"github.com/tgoai/tgo-sessionwatch/internal/logging"
	"github.com/tgoai/tgo-sessionwatch/internal/monitor"
	"github.com/tgoai/tgo-sessionwatch/internal/views/debug"
)

func main() {
	err := run(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("sessionwatch", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "sessionwatch.yaml", "Path to config file")
	backendURL := flags.String("url", "", "Base URL of the session backend")
	token := flags.String("token", "", "Auth token (if backend requires it)")
	logLevel := flags.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := flags.String("log-file", "", "Log file path")
	autoReconnect := flags.Bool("auto-reconnect", false, "Reconnect sessions automatically when they expire")
	if err := flags.Parse(args); err != nil {
		return err
	}

	config.LoadDotEnv()
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if flags.Changed("url") {
		cfg.Backend.URL = *backendURL
	}
	if flags.Changed("token") {
		cfg.Backend.Token = *token
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = *logFile
	}
	if flags.Changed("auto-reconnect") {
		cfg.Monitor.AutoReconnect = *autoReconnect
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile()
	}

	root, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	debugLog := debug.NewLog()
	root.AddHook(debugLog)

	wsURL, err := deriveWSURL(cfg.Backend.URL)
	if err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}

	ws := client.NewWSClient(wsURL, cfg.Backend.Token, logging.With(root, "roster"))
	httpClient := client.NewHTTPClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Monitor.RequestTimeout)

	m := app.New(ws, httpClient,
		app.WithPolicy(monitor.PolicyFromConfig(cfg.Monitor)),
		app.WithLogger(logging.With(root, "app")),
		app.WithDebugLog(debugLog),
	)
	root.WithField("backend", cfg.Backend.URL).Info("sessionwatch starting")

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// deriveWSURL converts http://host:port[/prefix] to ws://host:port[/prefix]/ws.
func deriveWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sessionwatch", "sessionwatch.log")
}
