// Package testutil holds helpers shared by server and CLI tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// ServerConfig describes a test server without importing the server
// package: a free port on loopback and a temporary home with fixture pages.
type ServerConfig struct {
	Host       string
	Port       string
	HomeDir    string
	PagesDir   string
	ConfigFile string
	Logger     *slog.Logger
}

// NewServerConfig writes pageCount fixture pages under a temporary home and
// reserves a port.
func NewServerConfig(t *testing.T, pageCount int) ServerConfig {
	t.Helper()

	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort() error = %v", err)
	}

	homeDir := t.TempDir()
	pagesDir := filepath.Join(homeDir, "pages")
	WritePages(t, pagesDir, pageCount)

	return ServerConfig{
		Host:       "127.0.0.1",
		Port:       port,
		HomeDir:    homeDir,
		PagesDir:   pagesDir,
		ConfigFile: filepath.Join(homeDir, "config.yaml"),
		Logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// URL returns the base URL of the server.
func (c ServerConfig) URL() string {
	return "http://" + net.JoinHostPort(c.Host, c.Port)
}

// Running is a server started with Start.
type Running struct {
	cancel context.CancelFunc
	done   chan error
}

// Start runs start in the background and waits for /ready to report the
// viewer mounted. The server is stopped when the test ends.
func Start(t *testing.T, cfg ServerConfig, start func(context.Context) error) *Running {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Running{cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- start(ctx) }()
	t.Cleanup(func() { r.Stop(10 * time.Second) })

	if err := WaitForServer(cfg.URL(), 10*time.Second); err != nil {
		cancel()
		t.Fatalf("server did not start: %v", err)
	}
	return r
}

// Stop cancels the server and waits up to timeout for Start to return.
// Calling it again returns nil.
func (r *Running) Stop(timeout time.Duration) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	r.cancel = nil
	return WaitForShutdown(r.done, timeout)
}

// WaitForServer polls /ready until it reports status ok.
func WaitForServer(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if ready(client, url) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func ready(client *http.Client, url string) bool {
	resp, err := client.Get(url + "/ready")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	return json.NewDecoder(resp.Body).Decode(&body) == nil && body.Status == "ok"
}

// WaitForShutdown returns what done yields, or an error after timeout.
func WaitForShutdown(done <-chan error, timeout time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for shutdown")
	}
}

// FindFreePort asks the kernel for an unused loopback port.
func FindFreePort() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}
