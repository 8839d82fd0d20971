package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/messaging"
)

func TestPreflightGetsCORSHeaders(t *testing.T) {
	router := newRouter(zap.NewNop(), messaging.NewHub(zap.NewNop()))
	api := router.PathPrefix("/api/v1/chat").Subrouter()
	api.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods("POST")

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"preflight on api route", http.MethodOptions, "/api/v1/chat/conversations", http.StatusOK},
		{"preflight on unknown path", http.MethodOptions, "/api/v1/nowhere", http.StatusOK},
		{"regular request", http.MethodPost, "/api/v1/chat/conversations", http.StatusTeapot},
		{"health", http.MethodGet, "/health", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", "https://app.kiekky.com")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		})
	}
}

func TestRunMigrationsCreatesCaseInsensitiveUserIndexes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	for _, statement := range migrations {
		mock.ExpectExec(statement).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, runMigrations(context.Background(), sqlx.NewDb(db, "postgres"), zap.NewNop()))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Contains(t, migrations, `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))`)
	assert.Contains(t, migrations, `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))`)
}
