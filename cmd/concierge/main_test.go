package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/nugget/concierge/internal/config"
)

func TestRun_Version(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, io.Discard, []string{"version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Concierge ") {
		t.Errorf("text version = %q", buf.String())
	}

	buf.Reset()
	if err := run(context.Background(), &buf, io.Discard, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run -o json version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("json version not JSON: %v\n%s", err, buf.String())
	}
	if info["version"] == "" {
		t.Errorf("info = %v, want version", info)
	}
}

func TestRun_HashToken(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, io.Discard, []string{"hash-token", "s3cret"}); err != nil {
		t.Fatalf("hash-token: %v", err)
	}
	hash := strings.TrimSpace(buf.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("printed hash does not verify: %v", err)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown command", []string{"dance"}, "unknown command"},
		{"unknown flag", []string{"-x", "serve"}, "unknown flag"},
		{"bad output", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"ask needs message", []string{"ask", "u1"}, "usage: concierge ask"},
		{"hash-token needs token", []string{"hash-token"}, "usage: concierge hash-token"},
		{"missing config", []string{"-config", "/nonexistent/config.yaml", "ask", "u1", "oi"}, "config file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), io.Discard, io.Discard, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRun_Usage(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, io.Discard, nil); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"serve", "ask <user> <message>", "hash-token", "-config"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

// clearUmask sets the process umask to 0 so file permission assertions
// are deterministic.
func clearUmask(t *testing.T) {
	t.Helper()
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })
}

func TestRunInit(t *testing.T) {
	clearUmask(t)
	dir := t.TempDir()
	var buf bytes.Buffer

	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	info, err := os.Stat(cfgPath)
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("config.yaml permissions = %o, want 0600", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("data dir not created: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Business.ID != "studio-bela" || len(cfg.Business.Services) != 3 {
		t.Errorf("business = %+v", cfg.Business)
	}

	// A second run leaves user edits alone.
	if err := os.WriteFile(cfgPath, []byte("edited"), 0o600); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
	data, _ := os.ReadFile(cfgPath)
	if string(data) != "edited" {
		t.Error("runInit overwrote an existing config")
	}
	if !strings.Contains(buf.String(), "left unchanged") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestBuildRepliers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.Replies = config.RepliesConfig{}
	multi, hub, err := buildRepliers(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	if multi.Len() != 1 || hub != nil {
		t.Errorf("empty config: channels = %d hub = %v, want log only", multi.Len(), hub)
	}

	cfg.Replies = config.RepliesConfig{
		WebSocket:  true,
		WebhookURL: "http://127.0.0.1:1/replies",
		Slack:      config.SlackConfig{Token: "xoxb-test"},
	}
	multi, hub, err = buildRepliers(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	if multi.Len() != 3 || hub == nil {
		t.Errorf("channels = %d hub = %v, want webhook, websocket, slack", multi.Len(), hub)
	}
}
