package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

type PageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

// Preview listings page with an opaque cursor so callers "load more"
// instead of silently dropping rows past a display cap. Export artifacts
// never paginate; they always carry the full row set.

func EncodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("row|%d", offset)))
}

func DecodeCursor(cursor *string) (int, error) {
	if cursor == nil || *cursor == "" {
		return 0, nil
	}
	b, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(string(b), "|")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid cursor")
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid cursor")
	}
	return offset, nil
}

// PaginateRows slices rows for a preview page and returns the page info
// needed for the next "load more" call.
func PaginateRows(rows []CanonicalRow, cursor *string, limit int) ([]CanonicalRow, PageInfo, error) {
	offset, err := DecodeCursor(cursor)
	if err != nil {
		return nil, PageInfo{}, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 || offset >= len(rows) {
		return []CanonicalRow{}, PageInfo{}, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	page := rows[offset:end]
	info := PageInfo{
		EndCursor:   EncodeCursor(end),
		HasNextPage: end < len(rows),
	}
	return page, info, nil
}
