package mcpserver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/abuttoncc/wind-mcp/internal/gangtise"
)

// detailLevelIterations maps the coarse detail_level knob to reasoning
// rounds. Out-of-range levels use the standard depth.
var detailLevelIterations = map[int]int{
	1: 1,
	2: 3,
	3: 5,
}

const (
	defaultIterations  = 3
	defaultDetailLevel = 2
)

// GangtiseTools registers the knowledge-query tools on s. The same query
// relay is exposed under several names because deployed client configs
// disagree on what to call it; all aliases hit the same upstream.
func GangtiseTools(s *Server, client *gangtise.Client) {
	queryProps := map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "The question to send to the knowledge agent",
		},
		"iter": map[string]interface{}{
			"type":        "integer",
			"description": "Number of reasoning rounds (default: 3)",
			"default":     defaultIterations,
		},
	}

	detailProps := map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "The question to send to the knowledge agent",
		},
		"detail_level": map[string]interface{}{
			"type":        "integer",
			"description": "Answer depth: 1=brief, 2=standard, 3=detailed",
			"default":     defaultDetailLevel,
		},
	}

	s.AddTool(mcp.Tool{
		Name:        "query_gangtise",
		Description: "Send a question to the Gangtise knowledge agent and return its answer.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: queryProps,
			Required:   []string{"query"},
		},
	}, handleQuery(client))

	s.AddTool(mcp.Tool{
		Name:        "gangtise_knowledge",
		Description: "Query the Gangtise knowledge base for a domain-expert answer.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: detailProps,
			Required:   []string{"query"},
		},
	}, handleDetailQuery(client))

	s.AddTool(mcp.Tool{
		Name:        "gangtise_agent",
		Description: "Ask the Gangtise intelligent agent for a domain-expert answer.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: detailProps,
			Required:   []string{"query"},
		},
	}, handleDetailQuery(client))

	s.AddTool(mcp.Tool{
		Name:        "simple_echo",
		Description: "Echo the input message back. Useful for connectivity testing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The message to echo",
				},
			},
			Required: []string{"message"},
		},
	}, handleEcho)

	s.AddTool(mcp.Tool{
		Name:        "mcp_diagnostics",
		Description: "Report server status, registered tools, and environment details.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleDiagnostics)
}

// handleQuery serves the raw-iteration form of the query tool.
func handleQuery(client *gangtise.Client) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return errorResponse("Missing required parameter: query"), nil
		}
		iterations := request.GetInt("iter", defaultIterations)

		answer, err := client.Query(ctx, query, iterations)
		if err != nil {
			return errorResponse(flattenError(err)), nil
		}
		return textResponse(answer), nil
	}
}

// handleDetailQuery serves the detail_level form, translating the level to
// reasoning rounds before relaying.
func handleDetailQuery(client *gangtise.Client) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return errorResponse("Missing required parameter: query"), nil
		}

		level := request.GetInt("detail_level", defaultDetailLevel)
		iterations, ok := detailLevelIterations[level]
		if !ok {
			iterations = defaultIterations
		}

		answer, err := client.Query(ctx, query, iterations)
		if err != nil {
			return errorResponse(flattenError(err)), nil
		}
		return textResponse(answer), nil
	}
}

func handleEcho(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return errorResponse("Missing required parameter: message"), nil
	}
	return textResponse(fmt.Sprintf("Echo: %s", message)), nil
}

type diagnosticsResult struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Hostname  string            `json:"hostname"`
	Tools     []string          `json:"registered_tools"`
	ToolCount int               `json:"tools_count"`
	Env       map[string]string `json:"environment"`
}

func (s *Server) handleDiagnostics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hostname, _ := os.Hostname()
	tools := s.ToolNames()

	return jsonResponse(diagnosticsResult{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		Hostname:  hostname,
		Tools:     tools,
		ToolCount: len(tools),
		Env: map[string]string{
			"port":      fmt.Sprintf("%d", s.cfg.Port),
			"transport": s.cfg.Transport,
		},
	}), nil
}
