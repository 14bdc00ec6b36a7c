package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/abuttoncc/wind-mcp/internal/wind"
)

// windErrorCode is reported when the adapter itself fails, as opposed to a
// nonzero code coming back from the terminal.
const windErrorCode = -1

// WindServer bundles the terminal dependencies the Wind tools share.
type WindServer struct {
	server     *Server
	terminal   wind.Terminal
	indicators *wind.Indicators
	version    string
}

// WindTools registers the terminal data tools on s.
func WindTools(s *Server, terminal wind.Terminal, indicators *wind.Indicators) *WindServer {
	ws := &WindServer{
		server:     s,
		terminal:   terminal,
		indicators: indicators,
		version:    s.version,
	}
	ws.registerTools()
	return ws
}

func codesFieldsProps(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"codes": map[string]interface{}{
			"type":        []string{"string", "array"},
			"description": "Security codes, a string like \"600519.SH\" or a list of strings",
		},
		"fields": map[string]interface{}{
			"type":        []string{"string", "array"},
			"description": "Indicator fields, comma-separated string or list. Common Chinese indicator names are translated automatically.",
		},
		"options": map[string]interface{}{
			"type":        "string",
			"description": "Semicolon-separated options, e.g. \"Period=W;Days=Trading\"",
			"default":     "",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

var dateRangeProps = map[string]interface{}{
	"beginTime": map[string]interface{}{
		"type":        "string",
		"description": "Start date, e.g. \"2024-01-01\", \"20240101\", or \"-5D\"",
	},
	"endTime": map[string]interface{}{
		"type":        "string",
		"description": "End date, e.g. \"2024-01-31\", \"20240131\", or \"-2D\"",
	},
}

func (ws *WindServer) registerTools() {
	s := ws.server

	s.AddTool(mcp.Tool{
		Name:        "wind_wsd",
		Description: "Fetch a daily time series (WSD) for securities over a date range.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: codesFieldsProps(dateRangeProps),
			Required:   []string{"codes", "fields", "beginTime", "endTime"},
		},
	}, ws.handleWSD)

	s.AddTool(mcp.Tool{
		Name:        "wind_wss",
		Description: "Fetch a cross-section snapshot (WSS) for securities.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: codesFieldsProps(nil),
			Required:   []string{"codes", "fields"},
		},
	}, ws.handleWSS)

	s.AddTool(mcp.Tool{
		Name:        "wind_wses",
		Description: "Fetch a sector daily series (WSES). Only a single field is supported.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: codesFieldsProps(dateRangeProps),
			Required:   []string{"codes", "fields", "beginTime", "endTime"},
		},
	}, ws.handleWSES)

	s.AddTool(mcp.Tool{
		Name:        "wind_tdays",
		Description: "List the trading (or calendar) dates in a range (TDAYS).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"beginTime": dateRangeProps["beginTime"],
				"endTime":   dateRangeProps["endTime"],
				"options": map[string]interface{}{
					"type":        "string",
					"description": "Semicolon-separated options, e.g. \"Days=Trading;TradingCalendar=SSE\"",
					"default":     "",
				},
			},
			Required: []string{"beginTime", "endTime"},
		},
	}, ws.handleTDays)

	s.AddTool(mcp.Tool{
		Name:        "wind_tdaysoffset",
		Description: "Compute the date offset a number of trading days from a base date (TDAYSOFFSET).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Offset in days: positive moves forward, negative moves back",
				},
				"beginTime": map[string]interface{}{
					"type":        "string",
					"description": "Base date",
				},
				"options": map[string]interface{}{
					"type":        "string",
					"description": "Semicolon-separated options",
					"default":     "",
				},
			},
			Required: []string{"offset", "beginTime"},
		},
	}, ws.handleTDaysOffset)

	s.AddTool(mcp.Tool{
		Name:        "wind_tdayscount",
		Description: "Count the dates in a range (TDAYSCOUNT).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"beginTime": dateRangeProps["beginTime"],
				"endTime":   dateRangeProps["endTime"],
				"options": map[string]interface{}{
					"type":        "string",
					"description": "Semicolon-separated options",
					"default":     "",
				},
			},
			Required: []string{"beginTime", "endTime"},
		},
	}, ws.handleTDaysCount)

	s.AddTool(mcp.Tool{
		Name:        "get_today_date",
		Description: "Return the server's current date.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"fmt": map[string]interface{}{
					"type":        "string",
					"description": "Date format in strftime syntax (default: %Y%m%d)",
					"default":     "%Y%m%d",
				},
			},
		},
	}, handleTodayDate)

	s.AddTool(mcp.Tool{
		Name:        "wind_indicators",
		Description: "List the indicator name aliases the adapter translates to terminal field codes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Optional substring filter applied to alias names and field codes",
					"default":     "",
				},
			},
		},
	}, ws.handleIndicators)

	s.AddTool(mcp.Tool{
		Name:        "wind_health",
		Description: "Report terminal connectivity and the registered tool list.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, ws.handleHealth)

	s.SetHealthFunc(ws.healthPayload)
}

// windError renders an adapter-side failure in the envelope clients expect.
func windError(err error) *mcp.CallToolResult {
	return jsonResponse(map[string]any{
		"ErrorCode": windErrorCode,
		"error":     flattenError(err),
	})
}

// dataResponse renders a terminal result, guaranteeing arrays (not null)
// for the envelope fields.
func dataResponse(result *wind.DataResult) *mcp.CallToolResult {
	if result.Data == nil {
		result.Data = [][]any{}
	}
	if result.Codes == nil {
		result.Codes = []string{}
	}
	if result.Fields == nil {
		result.Fields = []string{}
	}
	if result.Times == nil {
		result.Times = []string{}
	}
	return jsonResponse(result)
}

func (ws *WindServer) handleWSD(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	codes := wind.NormalizeList(args["codes"])
	fields := ws.indicators.Translate(wind.NormalizeList(args["fields"]))
	if codes == "" || fields == "" {
		return errorResponse("Missing required parameters: codes and fields"), nil
	}

	beginTime, err := request.RequireString("beginTime")
	if err != nil {
		return errorResponse("Missing required parameter: beginTime"), nil
	}
	endTime, err := request.RequireString("endTime")
	if err != nil {
		return errorResponse("Missing required parameter: endTime"), nil
	}

	result, err := ws.terminal.WSD(ctx, codes, fields, beginTime, endTime, request.GetString("options", ""))
	if err != nil {
		return windError(err), nil
	}
	return dataResponse(result), nil
}

func (ws *WindServer) handleWSS(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	codes := wind.NormalizeList(args["codes"])
	fields := ws.indicators.Translate(wind.NormalizeList(args["fields"]))
	if codes == "" || fields == "" {
		return errorResponse("Missing required parameters: codes and fields"), nil
	}

	result, err := ws.terminal.WSS(ctx, codes, fields, request.GetString("options", ""))
	if err != nil {
		return windError(err), nil
	}
	return dataResponse(result), nil
}

func (ws *WindServer) handleWSES(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	codes := wind.NormalizeList(args["codes"])
	fields := wind.NormalizeList(args["fields"])
	if codes == "" || fields == "" {
		return errorResponse("Missing required parameters: codes and fields"), nil
	}

	beginTime, err := request.RequireString("beginTime")
	if err != nil {
		return errorResponse("Missing required parameter: beginTime"), nil
	}
	endTime, err := request.RequireString("endTime")
	if err != nil {
		return errorResponse("Missing required parameter: endTime"), nil
	}

	result, err := ws.terminal.WSES(ctx, codes, fields, beginTime, endTime, request.GetString("options", ""))
	if err != nil {
		return windError(err), nil
	}
	return dataResponse(result), nil
}

func (ws *WindServer) handleTDays(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	beginTime, err := request.RequireString("beginTime")
	if err != nil {
		return errorResponse("Missing required parameter: beginTime"), nil
	}
	endTime, err := request.RequireString("endTime")
	if err != nil {
		return errorResponse("Missing required parameter: endTime"), nil
	}

	result, err := ws.terminal.TDays(ctx, beginTime, endTime, request.GetString("options", ""))
	if err != nil {
		return windError(err), nil
	}

	days := []string{}
	if len(result.Data) > 0 {
		for _, d := range result.Data[0] {
			days = append(days, compactDate(d))
		}
	}
	return jsonResponse(map[string]any{
		"ErrorCode":   result.ErrorCode,
		"TradingDays": days,
	}), nil
}

func (ws *WindServer) handleTDaysOffset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, ok := request.GetArguments()["offset"]; !ok {
		return errorResponse("Missing required parameter: offset"), nil
	}
	offset := request.GetInt("offset", 0)
	beginTime, err := request.RequireString("beginTime")
	if err != nil {
		return errorResponse("Missing required parameter: beginTime"), nil
	}

	result, err := ws.terminal.TDaysOffset(ctx, offset, beginTime, request.GetString("options", ""))
	if err != nil {
		return windError(err), nil
	}

	var offsetDate any
	if len(result.Data) > 0 && len(result.Data[0]) > 0 {
		offsetDate = compactDate(result.Data[0][0])
	}
	return jsonResponse(map[string]any{
		"ErrorCode":  result.ErrorCode,
		"OffsetDate": offsetDate,
	}), nil
}

func (ws *WindServer) handleTDaysCount(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	beginTime, err := request.RequireString("beginTime")
	if err != nil {
		return errorResponse("Missing required parameter: beginTime"), nil
	}
	endTime, err := request.RequireString("endTime")
	if err != nil {
		return errorResponse("Missing required parameter: endTime"), nil
	}

	result, err := ws.terminal.TDaysCount(ctx, beginTime, endTime, request.GetString("options", ""))
	if err != nil {
		return windError(err), nil
	}

	var count any
	if len(result.Data) > 0 && len(result.Data[0]) > 0 {
		count = result.Data[0][0]
	}
	return jsonResponse(map[string]any{
		"ErrorCode": result.ErrorCode,
		"Count":     count,
	}), nil
}

func handleTodayDate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("fmt", "%Y%m%d")
	layout, err := strftimeToLayout(format)
	if err != nil {
		return jsonResponse(map[string]any{"error": err.Error()}), nil
	}
	return jsonResponse(map[string]any{"today": time.Now().Format(layout)}), nil
}

func (ws *WindServer) handleIndicators(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	aliases := ws.indicators.Aliases()
	if query := request.GetString("query", ""); query != "" {
		filtered := make(map[string]string)
		for alias, code := range aliases {
			if strings.Contains(alias, query) || strings.Contains(code, query) {
				filtered[alias] = code
			}
		}
		aliases = filtered
	}
	return jsonResponse(aliases), nil
}

type windHealthResult struct {
	Status        string   `json:"status"`
	WindConnected bool     `json:"wind_connected"`
	ServerVersion string   `json:"server_version"`
	Tools         []string `json:"tools"`
}

func (ws *WindServer) healthPayload(ctx context.Context) any {
	return windHealthResult{
		Status:        "ok",
		WindConnected: ws.terminal.IsConnected(ctx),
		ServerVersion: ws.version,
		Tools:         ws.server.ToolNames(),
	}
}

func (ws *WindServer) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResponse(ws.healthPayload(ctx)), nil
}

// strftimeConversions covers the directives clients use with
// get_today_date. Unsupported directives are an error rather than a silent
// wrong answer.
var strftimeConversions = []struct {
	directive string
	layout    string
}{
	{"%Y", "2006"},
	{"%m", "01"},
	{"%d", "02"},
	{"%H", "15"},
	{"%M", "04"},
	{"%S", "05"},
	{"%y", "06"},
}

func strftimeToLayout(format string) (string, error) {
	layout := format
	for _, c := range strftimeConversions {
		layout = strings.ReplaceAll(layout, c.directive, c.layout)
	}
	if strings.Contains(layout, "%") {
		return "", fmt.Errorf("unsupported date format directive in %q", format)
	}
	return layout, nil
}

// compactDate normalizes a bridge-supplied date value to YYYYMMDD where
// possible, passing anything unrecognized through as a string.
func compactDate(v any) string {
	s := fmt.Sprintf("%v", v)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("20060102")
	}
	return s
}
