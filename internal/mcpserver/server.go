// Package mcpserver exposes the answering pipeline as MCP tools so editors
// and agents can query the document collection.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"docqa/internal/advice"
	"docqa/internal/httpapi"
	"docqa/internal/logging"
)

// Server wraps the MCP SDK server.
type Server struct {
	MCPServer *sdkmcp.Server

	// RequestTimeout bounds each tool call. Zero means no limit.
	RequestTimeout time.Duration

	answerer  httpapi.Answerer
	retriever httpapi.Retriever
}

// NewServer registers the ask and search tools.
func NewServer(answerer httpapi.Answerer, retriever httpapi.Retriever, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{answerer: answerer, retriever: retriever}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "docqa", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.RequestTimeout)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the indexed documents. Returns the question, the retrieved context and the answer.",
	}, s.handleAsk)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "search",
		Description: "Retrieve the passages nearest to a query with their distances and confidence tier, without generating an answer.",
	}, s.handleSearch)
}

type askInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the documents"`
}

type askOutput struct {
	Question string `json:"question"`
	Context  string `json:"context"`
	Answer   string `json:"answer"`
	Tier     string `json:"tier"`
}

type searchInput struct {
	Query string `json:"query" jsonschema:"text to search the index for"`
}

func (s *Server) handleAsk(ctx context.Context, _ *sdkmcp.CallToolRequest, input askInput) (*sdkmcp.CallToolResult, askOutput, error) {
	q := strings.TrimSpace(input.Question)
	if q == "" {
		return nil, askOutput{}, errors.New("question is required")
	}
	ctx, cancel := s.requestContext(ctx)
	defer cancel()
	env, err := s.answerer.Answer(ctx, q)
	if err != nil {
		return nil, askOutput{}, withHint(err)
	}
	return nil, askOutput{
		Question: env.Question,
		Context:  env.Context,
		Answer:   env.Answer,
		Tier:     env.Retrieval.Tier.String(),
	}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *sdkmcp.CallToolRequest, input searchInput) (*sdkmcp.CallToolResult, httpapi.SearchResponse, error) {
	q := strings.TrimSpace(input.Query)
	if q == "" {
		return nil, httpapi.SearchResponse{}, errors.New("query is required")
	}
	ctx, cancel := s.requestContext(ctx)
	defer cancel()
	res, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, httpapi.SearchResponse{}, withHint(err)
	}
	return nil, httpapi.NewSearchResponse(q, res), nil
}

func withHint(err error) error {
	logging.New("mcp").Error("tool call failed", "error", err)
	if hint := advice.For(err); hint != "" {
		return fmt.Errorf("%w (%s)", err, hint)
	}
	return err
}
