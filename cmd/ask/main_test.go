package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ask/internal/config"
	"ask/internal/provider"
	"ask/internal/remote"
	"ask/internal/render"
	"ask/internal/repl"
	"ask/internal/session"
)

func TestConfigureWritesAndLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"ANTHROPIC_API_KEY": "ant-old", "theme": "dark"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := configure(strings.NewReader("sk-abcdef\n\n"), &out, path, false); err != nil {
		t.Fatalf("configure: %v", err)
	}
	stored, err := config.ReadStoredKeys(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"OPENAI_API_KEY": "sk-abcdef", "ANTHROPIC_API_KEY": "ant-old", "theme": "dark"}
	if diff := cmp.Diff(want, stored); diff != "" {
		t.Fatalf("stored (-want +got):\n%s", diff)
	}

	out.Reset()
	if err := configure(strings.NewReader(""), &out, path, true); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"Config at " + path, "OPENAI_API_KEY: sk-a*****", "ANTHROPIC_API_KEY: ant****", "theme: dark"} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("listing missing %q:\n%s", line, out.String())
		}
	}
}

func TestConfigureEOFKeepsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	var out bytes.Buffer
	if err := configure(strings.NewReader(""), &out, path, false); err != nil {
		t.Fatalf("configure: %v", err)
	}
	stored, err := config.ReadStoredKeys(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 0 {
		t.Fatalf("stored=%v", stored)
	}
}

func TestRemoteConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SSH.KeyPaths = []string{"/keys/id_ed25519"}
	cfg.SSH.KnownHosts = "/keys/known_hosts"
	cfg.SSH.TimeoutMS = 1500
	cfg.Safety.CommandTimeoutMS = 2500
	off := false
	cfg.SSH.UseAgent = &off

	got := remoteConfig(cfg, session.RemoteConfig{Host: "db", Username: "bob", Port: 2200})
	want := remote.Config{
		Host:           "db",
		Username:       "bob",
		Port:           2200,
		KeyPaths:       []string{"/keys/id_ed25519"},
		UseAgent:       false,
		KnownHosts:     "/keys/known_hosts",
		Timeout:        1500 * time.Millisecond,
		OutputLimit:    cfg.Safety.OutputLimitBytes,
		CommandTimeout: 2500 * time.Millisecond,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("remote config (-want +got):\n%s", diff)
	}
}

func TestRemoteDialerReturnsNilSessionOnError(t *testing.T) {
	dial := remoteDialer(config.Default())
	rs, err := dial(context.Background(), session.RemoteConfig{})
	if err == nil {
		t.Fatal("expected error for empty host")
	}
	if rs != nil {
		t.Fatalf("session=%v, want nil interface", rs)
	}
}

func TestBuildAppDispatchOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Tasks.Dir = t.TempDir()
	var out bytes.Buffer
	a, err := buildApp(cfg, provider.Selection{Vendor: config.VendorAnthropic, Alias: "haiku", Model: "claude-3-5-haiku-20241022"}, appDeps{
		console:  render.NewConsole(&out, render.Options{Width: 80}),
		prompter: repl.NewBasicLineInput(strings.NewReader(""), &out),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()

	var prefixes []string
	seen := map[string]bool{}
	for _, o := range a.dispatcher.Registry().Options() {
		if o.Prefix == "" || seen[o.Prefix] {
			continue
		}
		seen[o.Prefix] = true
		prefixes = append(prefixes, o.Prefix)
	}
	want := []string{`\h`, `\q`, `\task`, `\ssh`, `\ssh connect`, `\ssh disconnect`, `\shell`, `\web`, `\file`, `\c`, `\compress`, `\chat`}
	if diff := cmp.Diff(want, prefixes); diff != "" {
		t.Fatalf("prefixes (-want +got):\n%s", diff)
	}

	if err := a.dispatcher.Dispatch(context.Background(), `\task list`); err != nil {
		t.Fatalf("task list: %v", err)
	}
	if !strings.Contains(out.String(), "No tasks found") {
		t.Fatalf("output=%q", out.String())
	}
	if err := a.dispatcher.Dispatch(context.Background(), `\q`); !errors.Is(err, repl.ErrQuit) {
		t.Fatalf("err=%v", err)
	}
}
