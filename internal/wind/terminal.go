// Package wind adapts a Wind financial terminal session: data queries,
// trading-calendar functions, indicator alias translation, and a keepalive
// monitor that restores dropped sessions.
package wind

import (
	"context"
	"strings"
)

// DataResult is the uniform result shape the terminal returns for data
// queries. ErrorCode 0 means success; nonzero codes come from the terminal
// unchanged.
type DataResult struct {
	ErrorCode int        `json:"ErrorCode"`
	Data      [][]any    `json:"Data"`
	Codes     []string   `json:"Codes"`
	Fields    []string   `json:"Fields"`
	Times     []string   `json:"Times"`
}

// Terminal is a Wind terminal session. The production implementation talks
// to a local bridge process that owns the vendor SDK; tests substitute a
// fake.
type Terminal interface {
	// Start opens (or reopens) the terminal session.
	Start(ctx context.Context) error

	// IsConnected reports whether the session is currently usable.
	IsConnected(ctx context.Context) bool

	// WSD fetches a daily time series for codes and fields over a
	// date range.
	WSD(ctx context.Context, codes, fields, beginTime, endTime, options string) (*DataResult, error)

	// WSS fetches a cross-section snapshot for codes and fields.
	WSS(ctx context.Context, codes, fields, options string) (*DataResult, error)

	// WSES fetches a sector daily series. Only a single field is
	// supported by the terminal.
	WSES(ctx context.Context, codes, fields, beginTime, endTime, options string) (*DataResult, error)

	// TDays returns the calendar dates in a range.
	TDays(ctx context.Context, beginTime, endTime, options string) (*DataResult, error)

	// TDaysOffset returns the date offset trading days from a base date.
	TDaysOffset(ctx context.Context, offset int, beginTime, options string) (*DataResult, error)

	// TDaysCount returns the number of dates in a range.
	TDaysCount(ctx context.Context, beginTime, endTime, options string) (*DataResult, error)
}

// NormalizeList accepts the string-or-list forms clients send for codes and
// fields and returns the comma-joined string the terminal expects. Non-string
// list elements are rendered with fmt semantics by the caller before reaching
// here, so only strings appear in practice.
func NormalizeList(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}
