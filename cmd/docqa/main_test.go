package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docqa/internal/config"
	"docqa/internal/retrieval"
)

func stubOllama(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !strings.Contains(req.Prompt, "Context:") {
			http.Error(w, `{"error":"no context"}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": reply})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ollamaURL string) *config.AppConfig {
	t.Helper()
	c := config.Default()
	c.VectorStore.Type = "sqlite"
	c.VectorStore.SQLite = &config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "index.db")}
	c.Generator.Type = "ollama"
	c.Generator.Ollama = &config.OllamaConfig{URL: ollamaURL, Model: "test"}
	return c
}

func writeDoc(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuildApp_IngestThenAnswer(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t, stubOllama(t, "The site manager.").URL)
	doc := writeDoc(t, "delays.md", "Delays are reported to the site manager. Payments are released monthly.")

	a, err := buildApp(c)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	rep, err := a.index.Ingest(ctx, []string{doc})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rep.Documents != 1 || rep.Chunks == 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh app reopens the persisted index.
	b, err := buildApp(c)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer b.Close()
	env, err := b.pipeline.Answer(ctx, "Who receives delays reports?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if env.Answer != "The site manager." {
		t.Fatalf("unexpected answer %q", env.Answer)
	}
	if !strings.Contains(env.Context, "site manager") {
		t.Fatalf("context missing passage: %q", env.Context)
	}
}

func TestBuildApp_UnknownTermsUseSentinel(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t, stubOllama(t, "Not specified.").URL)
	doc := writeDoc(t, "a.txt", "Concrete curing takes seven days.")

	a, err := buildApp(c)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()
	if _, err := a.index.Ingest(ctx, []string{doc}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	env, err := a.pipeline.Answer(ctx, "zebra giraffe")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if env.Context != retrieval.DefaultSentinel {
		t.Fatalf("expected sentinel, got %q", env.Context)
	}
}

func TestBuildApp_InvalidConfig(t *testing.T) {
	c := config.Default()
	c.Retrieval.K = 0
	if _, err := buildApp(c); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestBuildApp_TemplateFile(t *testing.T) {
	c := testConfig(t, "http://127.0.0.1:1")
	c.Prompt.TemplateFile = writeDoc(t, "prompt.tmpl", "Context: {{.Context}} Q: {{.Question}}")
	asm, err := buildAssembler(c)
	if err != nil {
		t.Fatalf("buildAssembler: %v", err)
	}
	got, err := asm.Assemble("c", "q")
	if err != nil || got != "Context: c Q: q" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestConfigCommand_PrintsDefaults(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "config", "--defaults"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"retrieval:", "high: 0.8", "low: 1.2", "rule_set: guardrail-v2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRequestContext_UsesGeneratorTimeout(t *testing.T) {
	c := config.Default()
	c.Generator.TimeoutSecs = 7
	ctx, cancel := requestContext(context.Background(), c)
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if left := time.Until(deadline); left <= 0 || left > 7*time.Second {
		t.Fatalf("unexpected deadline in %v", left)
	}

	c.Generator.TimeoutSecs = 0
	ctx, cancel = requestContext(context.Background(), c)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("zero timeout must not set a deadline")
	}
}
