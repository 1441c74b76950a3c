package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListLogsHandler(t *testing.T) {
	t.Run("returns logs with pagination and timing", func(t *testing.T) {
		a := newTestAPI(t)
		a.do(t, http.MethodPost, "/logs", testLog("info", "hello"), testAPIKey)

		resp := a.do(t, http.MethodGet, "/logs", nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[QueryResponse](t, resp)
		require.Len(t, body.Logs, 1)
		assert.Equal(t, 1, body.Pagination.Total)
		assert.Equal(t, 100, body.Pagination.Limit)
		assert.GreaterOrEqual(t, body.QueryTimeMS, 0.0)
	})

	t.Run("validates query parameters", func(t *testing.T) {
		a := newTestAPI(t)
		for _, q := range []string{
			"?limit=0",
			"?limit=1001",
			"?limit=abc",
			"?offset=-1",
			"?sort=sideways",
			"?severity=noisy",
		} {
			resp := a.do(t, http.MethodGet, "/logs"+q, nil, testAPIKey)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})

	t.Run("accepts severity lists", func(t *testing.T) {
		a := newTestAPI(t)
		resp := a.do(t, http.MethodGet, "/logs?severity=error,fatal&limit=10&sort=asc", nil, testAPIKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("tolerates whitespace around severity entries", func(t *testing.T) {
		a := newTestAPI(t)
		resp := a.do(t, http.MethodGet, "/logs?severity=error,%20fatal", nil, testAPIKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestSearchLogsHandler(t *testing.T) {
	t.Run("requires q", func(t *testing.T) {
		a := newTestAPI(t)
		resp := a.do(t, http.MethodGet, "/logs/search", nil, testAPIKey)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeBody[ErrorResponse](t, resp)
		assert.Equal(t, "ValidationError", body.Error.Type)
	})

	t.Run("returns scored results", func(t *testing.T) {
		a := newTestAPI(t)
		a.do(t, http.MethodPost, "/logs", testLog("error", "connection timeout"), testAPIKey)

		resp := a.do(t, http.MethodGet, "/logs/search?q=timeout", nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[SearchResponse](t, resp)
		assert.Equal(t, "timeout", body.Query)
		assert.Equal(t, 1, body.Total)
		require.Len(t, body.Results, 1)
		assert.GreaterOrEqual(t, body.SearchTimeMS, 0.0)
	})
}

func TestGetLogHandler(t *testing.T) {
	t.Run("returns a stored event", func(t *testing.T) {
		a := newTestAPI(t)
		a.do(t, http.MethodPost, "/logs", testLog("warn", "low disk"), testAPIKey)

		resp := a.do(t, http.MethodGet, "/logs/1", nil, testAPIKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		a := newTestAPI(t)
		resp := a.do(t, http.MethodGet, "/logs/999", nil, testAPIKey)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		body := decodeBody[ErrorResponse](t, resp)
		assert.Equal(t, "NotFoundError", body.Error.Type)
	})
}
