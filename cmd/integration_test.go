package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/docsync/internal/runlog"
)

// resetFlags clears values and Changed state left behind by a previous
// Execute, since the command tree is package-global.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns combined output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	cfgFile = ""
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// isolate points HOME and every state directory at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DOCSYNC_RUNS_DIR", filepath.Join(home, "runs"))
	t.Setenv("DOCSYNC_CACHE_DIR", filepath.Join(home, "cache"))
	t.Setenv("DOCSYNC_DOC_IDS", "")
	t.Setenv("DOCSYNC_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("DOCSYNC_RETRY_BASE_DELAY_MS", "1")
	t.Setenv("DOCSYNC_RETRY_MAX_DELAY_MS", "5")
	return home
}

type ipv4Server struct {
	URL string
	srv *http.Server
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	s := &ipv4Server{URL: "http://" + ln.Addr().String(), srv: srv}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	})
	return s
}

// fakeOllama answers /api/chat by looking at the system prompt: plan
// requests get planReply, title requests a fixed title, and window requests
// a small structured summary.
func fakeOllama(t *testing.T, planReply string) *ipv4Server {
	t.Helper()
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		system := req.Messages[0].Content
		var content string
		switch {
		case strings.Contains(system, "code builder"):
			content = planReply
		case strings.Contains(system, "short document title"):
			content = `{"title":"Auth Service"}`
		default:
			content = `{"highlights":["Users sign in with email"],"requirements":["Sessions expire after 24h"],` +
				`"constraints":[],"entities":["Session"],"fileHints":[{"path":"internal/auth/session.go","purpose":"session store"}],"openQuestions":[]}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": content},
			"done":              true,
			"prompt_eval_count": 10,
			"eval_count":        5,
		})
	}))
}

func writeDoc(t *testing.T, dir, name, text string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCLI_DigestDryRunEstimatesWithoutModel(t *testing.T) {
	home := isolate(t)
	doc := writeDoc(t, home, "spec.md", strings.Repeat("word ", 5000))

	out, err := runCmd(t, "digest", doc, "--dry-run", "--window-size", "10000", "--overlap", "0")
	if err != nil {
		t.Fatalf("digest --dry-run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 windows") || !strings.Contains(out, "Total: 3 windows") {
		t.Fatalf("unexpected window count:\n%s", out)
	}
	if !strings.Contains(out, "Estimated cost for openai/gpt-4.1-mini") {
		t.Fatalf("missing cost estimate:\n%s", out)
	}
}

func TestCLI_DigestRequiresIDs(t *testing.T) {
	isolate(t)
	if _, err := runCmd(t, "digest", "--dry-run"); err == nil || !strings.Contains(err.Error(), "no document ids") {
		t.Fatalf("expected missing ids error, got %v", err)
	}
}

func TestCLI_DigestWritesBundleAndRunRecord(t *testing.T) {
	home := isolate(t)
	srv := fakeOllama(t, "")
	doc := writeDoc(t, home, "auth.md", "# Auth\n\nUsers sign in with email.\n")
	bundlePath := filepath.Join(home, "bundle.json")

	out, err := runCmd(t, "digest", doc, "-o", bundlePath, "--provider", "ollama", "--ollama-host", srv.URL, "--no-cache")
	if err != nil {
		t.Fatalf("digest: %v\n%s", err, out)
	}
	b, err := os.ReadFile(bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	var bundle struct {
		Documents []struct {
			DocID        string   `json:"docId"`
			Title        string   `json:"title"`
			Requirements []string `json:"requirements"`
		} `json:"documents"`
		MaxBytes int `json:"max_bytes"`
	}
	if err := json.Unmarshal(b, &bundle); err != nil {
		t.Fatalf("bundle is not valid JSON: %v\n%s", err, b)
	}
	if len(bundle.Documents) != 1 || bundle.Documents[0].Title != "Auth Service" || bundle.Documents[0].DocID != doc {
		t.Fatalf("unexpected bundle: %s", b)
	}
	if bundle.MaxBytes != 100000 || len(bundle.Documents[0].Requirements) != 1 {
		t.Fatalf("unexpected bundle: %s", b)
	}
	if !strings.Contains(out, "✓ Bundle written to") {
		t.Fatalf("missing status line:\n%s", out)
	}

	recs, err := runlog.List(filepath.Join(home, "runs"))
	if err != nil || len(recs) != 1 {
		t.Fatalf("run records: %v, %v", recs, err)
	}
	if recs[0].Command != "digest" || len(recs[0].Report.Documents) != 1 {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
}

func TestCLI_DigestExplainsDegradedRun(t *testing.T) {
	home := isolate(t)
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'nope' not found"}`, http.StatusNotFound)
	}))
	doc := writeDoc(t, home, "a.txt", "some text")

	out, err := runCmd(t, "digest", doc, "-o", filepath.Join(home, "b.json"),
		"--provider", "ollama", "--ollama-host", srv.URL, "--model", "nope", "--no-cache")
	if err != nil {
		t.Fatalf("a degraded run must still succeed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "degraded") || !strings.Contains(out, "ollama pull nope") {
		t.Fatalf("missing degradation hint:\n%s", out)
	}
}

func TestCLI_SyncWritesOnlyAllowedPaths(t *testing.T) {
	home := isolate(t)
	planReply := `{"files":[` +
		`{"path":"internal/auth/session.go","content":"package auth\n"},` +
		`{"path":"cmd/main.go","content":"package main\n"},` +
		`{"path":"../escape.go","content":"x"}],"notes":"session store scaffold"}`
	srv := fakeOllama(t, planReply)
	doc := writeDoc(t, home, "auth.md", "Users sign in with email.")
	root := filepath.Join(home, "repo")
	planOut := filepath.Join(home, "plan.yaml")

	out, err := runCmd(t, "sync", doc, "--allow", "internal/", "--root", root,
		"--plan-out", planOut, "--format", "yaml",
		"--provider", "ollama", "--ollama-host", srv.URL, "--no-cache")
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Wrote files:\n- internal/auth/session.go\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "session store scaffold") {
		t.Fatalf("notes not printed:\n%s", out)
	}
	if got, err := os.ReadFile(filepath.Join(root, "internal", "auth", "session.go")); err != nil || string(got) != "package auth\n" {
		t.Fatalf("allowed file: %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(root, "cmd", "main.go")); !os.IsNotExist(err) {
		t.Fatal("file outside the allowlist was written")
	}
	if _, err := os.Stat(filepath.Join(home, "escape.go")); !os.IsNotExist(err) {
		t.Fatal("path traversal was written")
	}
	if b, err := os.ReadFile(planOut); err != nil || !strings.Contains(string(b), "cmd/main.go") {
		t.Fatalf("plan file should keep the full plan: %v", err)
	}
}

func TestCLI_SyncDryRunWritesNothing(t *testing.T) {
	home := isolate(t)
	srv := fakeOllama(t, `{"files":[{"path":"docs/a.md","content":"x"}],"notes":""}`)
	doc := writeDoc(t, home, "a.md", "text")
	root := filepath.Join(home, "repo")

	out, err := runCmd(t, "sync", doc, "--dry-run", "--root", root,
		"--provider", "ollama", "--ollama-host", srv.URL, "--no-cache")
	if err != nil {
		t.Fatalf("sync --dry-run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Would write files:\n- docs/a.md\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatal("dry run created the root directory")
	}
}

func TestCLI_SyncUnparseablePlanWritesNothing(t *testing.T) {
	home := isolate(t)
	srv := fakeOllama(t, "Sorry, I can't produce a plan.")
	doc := writeDoc(t, home, "a.md", "text")

	out, err := runCmd(t, "sync", doc, "--root", filepath.Join(home, "repo"),
		"--provider", "ollama", "--ollama-host", srv.URL, "--no-cache")
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No files written (maybe all proposed paths were outside allowlist?)") ||
		!strings.Contains(out, "Sorry, I can't produce a plan.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCLI_ConfigSetShowKeys(t *testing.T) {
	home := isolate(t)
	if out, err := runCmd(t, "config", "set", "window_size", "4000"); err != nil {
		t.Fatalf("config set: %v\n%s", err, out)
	}
	if out, err := runCmd(t, "config", "set", "api_key", "sk-or-secret-value"); err != nil {
		t.Fatalf("config set: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(home, ".docsync", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	out, err := runCmd(t, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "window_size: 4000") {
		t.Fatalf("saved value not loaded:\n%s", out)
	}
	if strings.Contains(out, "secret") || !strings.Contains(out, "sk-******lue") {
		t.Fatalf("api_key not masked:\n%s", out)
	}
	if _, err := runCmd(t, "config", "set", "window_size", "zero"); err == nil {
		t.Fatal("expected validation error")
	}
	out, err = runCmd(t, "config", "keys")
	if err != nil || !strings.Contains(out, "on_fetch_error\n") {
		t.Fatalf("keys: %v\n%s", err, out)
	}
}

func TestCLI_RunsAndCache(t *testing.T) {
	home := isolate(t)
	out, err := runCmd(t, "runs", "list")
	if err != nil || !strings.Contains(out, "No runs recorded") {
		t.Fatalf("runs list: %v\n%s", err, out)
	}
	out, err = runCmd(t, "cache", "stats")
	if err != nil || !strings.Contains(out, "Entries: 0") {
		t.Fatalf("cache stats: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(home, "cache", "digests.db")); err != nil {
		t.Fatalf("cache db not created: %v", err)
	}
	out, err = runCmd(t, "cache", "clear")
	if err != nil || !strings.Contains(out, "Removed 0") {
		t.Fatalf("cache clear: %v\n%s", err, out)
	}
}
