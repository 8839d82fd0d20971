package friends

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
)

// headerAuth trusts X-User-ID so tests can act as any user
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), id, "")))
	})
}

func TestSuggestionsEndpoint(t *testing.T) {
	svc, _ := newTestService()
	befriend(t, svc, alice, bob)
	befriend(t, svc, bob, dave)

	router := mux.NewRouter()
	RegisterRoutes(router, NewHandler(svc), headerAuth)

	get := func(path string) (int, map[string]json.RawMessage) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-User-ID", strconv.FormatInt(alice, 10))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
		return rec.Code, env
	}

	status, env := get("/api/v1/friends/suggestions?limit=5")
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Suggestions []struct {
			User          auth.Profile `json:"user"`
			MutualFriends int          `json:"mutualFriends"`
		} `json:"suggestions"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env["data"], &data))
	assert.Equal(t, 1, data.Count)
	require.Len(t, data.Suggestions, 1)
	assert.Equal(t, "dave", data.Suggestions[0].User.Username)
	assert.Equal(t, 1, data.Suggestions[0].MutualFriends)

	for _, bad := range []string{"0", "-3", "many"} {
		status, env = get("/api/v1/friends/suggestions?limit=" + bad)
		assert.Equal(t, http.StatusBadRequest, status, bad)
		assert.JSONEq(t, `"INVALID_LIMIT"`, string(env["code"]), bad)
	}
}
