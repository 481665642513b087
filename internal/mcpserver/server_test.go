package mcpserver_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"docqa/internal/confidence"
	"docqa/internal/domain"
	"docqa/internal/mcpserver"
	"docqa/internal/pipeline"
	"docqa/internal/retrieval"
)

type stubAnswerer struct{ err error }

func (s stubAnswerer) Answer(_ context.Context, q string) (pipeline.Envelope, error) {
	if s.err != nil {
		return pipeline.Envelope{}, s.err
	}
	return pipeline.Envelope{
		Question:  q,
		Context:   "Delays go to the site manager.",
		Answer:    "The site manager.",
		Retrieval: retrieval.Result{Tier: confidence.TierHigh},
	}, nil
}

type waitingAnswerer struct{}

func (waitingAnswerer) Answer(ctx context.Context, _ string) (pipeline.Envelope, error) {
	<-ctx.Done()
	return pipeline.Envelope{}, &pipeline.GenerationFailure{Err: ctx.Err()}
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(context.Context, string) (retrieval.Result, error) {
	return retrieval.Result{
		Chunks:    []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "d:0", Source: "delays.md", Content: "Delays go to the site manager."}, Distance: 0.5}},
		BestScore: 0.5,
		Tier:      confidence.TierHigh,
	}, nil
}

func connectInMemory(t *testing.T, ctx context.Context, srv *mcpserver.Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer.Connect(ctx, t1, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) (map[string]any, bool, string) {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	for _, c := range res.Content {
		tc, ok := c.(*sdkmcp.TextContent)
		if !ok {
			continue
		}
		if res.IsError {
			return nil, true, tc.Text
		}
		out := make(map[string]any)
		if err := json.Unmarshal([]byte(tc.Text), &out); err != nil {
			t.Fatalf("unmarshal tool result: %v (text: %s)", err, tc.Text)
		}
		return out, false, tc.Text
	}
	t.Fatalf("no text content in tool result")
	return nil, false, ""
}

func TestToolDiscovery(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, mcpserver.NewServer(stubAnswerer{}, stubRetriever{}, "test"))
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	if !names["ask"] || !names["search"] {
		t.Fatalf("expected ask and search tools, got %v", names)
	}
}

func TestAskTool(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, mcpserver.NewServer(stubAnswerer{}, stubRetriever{}, "test"))
	out, isErr, text := callTool(t, ctx, session, "ask", map[string]any{"question": "Who handles delays?"})
	if isErr {
		t.Fatalf("ask returned error: %s", text)
	}
	if out["answer"] != "The site manager." || out["question"] != "Who handles delays?" || out["tier"] != "high" {
		t.Fatalf("unexpected ask output %v", out)
	}
}

func TestAskTool_ErrorCarriesHint(t *testing.T) {
	ctx := context.Background()
	failing := stubAnswerer{err: &retrieval.Failure{Query: "q", Err: domain.ErrIndexMissing}}
	session := connectInMemory(t, ctx, mcpserver.NewServer(failing, stubRetriever{}, "test"))
	_, isErr, text := callTool(t, ctx, session, "ask", map[string]any{"question": "q"})
	if !isErr {
		t.Fatal("expected IsError=true for retrieval failure")
	}
	if !strings.Contains(text, "docqa ingest") {
		t.Fatalf("expected remediation hint in error, got %q", text)
	}
}

func TestSearchTool(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, mcpserver.NewServer(stubAnswerer{}, stubRetriever{}, "test"))
	out, isErr, text := callTool(t, ctx, session, "search", map[string]any{"query": "delays"})
	if isErr {
		t.Fatalf("search returned error: %s", text)
	}
	hits, ok := out["hits"].([]any)
	if !ok || len(hits) != 1 {
		t.Fatalf("expected one hit, got %v", out["hits"])
	}
	if out["tier"] != "high" {
		t.Fatalf("unexpected tier %v", out["tier"])
	}
}

func TestSearchTool_EmptyQuery(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, mcpserver.NewServer(stubAnswerer{}, stubRetriever{}, "test"))
	_, isErr, _ := callTool(t, ctx, session, "search", map[string]any{"query": "  "})
	if !isErr {
		t.Fatal("expected IsError=true for empty query")
	}
}

func TestAskTool_RequestTimeout(t *testing.T) {
	ctx := context.Background()
	srv := mcpserver.NewServer(waitingAnswerer{}, stubRetriever{}, "test")
	srv.RequestTimeout = 20 * time.Millisecond
	session := connectInMemory(t, ctx, srv)
	_, isErr, text := callTool(t, ctx, session, "ask", map[string]any{"question": "q"})
	if !isErr {
		t.Fatal("expected IsError=true when the call exceeds its timeout")
	}
	if !strings.Contains(text, "timed out") {
		t.Fatalf("expected timeout hint, got %q", text)
	}
}
