package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
)

func TestParseID(t *testing.T) {
	id, err := ParseID(" 17 ", "conversationId")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	for _, raw := range []string{"", "abc", "0", "-3", "1.5"} {
		_, err := ParseID(raw, "conversationId")
		assert.True(t, apperror.IsKind(err, apperror.KindValidation), "input %q", raw)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
		wantErr   bool
	}{
		{"", 1, DefaultPageSize, false},
		{"?page=3&limit=20", 3, 20, false},
		{"?limit=500", 1, MaxPageSize, false},
		{"?page=0", 0, 0, true},
		{"?limit=-1", 0, 0, true},
		{"?page=two", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			page, limit, err := ParsePagination(httptest.NewRequest("GET", "/x"+tt.query, nil))
			if tt.wantErr {
				assert.True(t, apperror.IsKind(err, apperror.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}
