// internal/common/utils/params.go
// Path and query parameter parsing shared by handlers

package utils

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ParseID parses a positive integer identifier
func ParseID(raw, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperror.Validation("MISSING_ID", field+" is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("INVALID_ID", field+" is not a valid id")
	}
	return id, nil
}

// ParsePagination reads page and limit. Page defaults to 1, limit to
// DefaultPageSize and is clamped at MaxPageSize.
func ParsePagination(r *http.Request) (page, limit int, err error) {
	q := r.URL.Query()

	page = 1
	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, apperror.Validation("INVALID_PAGINATION", "page must be a positive integer")
		}
	}

	limit = DefaultPageSize
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, apperror.Validation("INVALID_PAGINATION", "limit must be a positive integer")
		}
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	return page, limit, nil
}
