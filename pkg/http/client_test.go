package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t0ken", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "SBER", r.URL.Query().Get("instrument_id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]int{"lots": body["lots"] * 2})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL+"/api/"), WithBearerToken("t0ken"))
	var out map[string]int
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodPost,
		URL:         "/orders",
		QueryParams: map[string][]string{"instrument_id": {"SBER"}},
		Body:        map[string]int{"lots": 4},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, 8, out["lots"])
}

func TestClientStatusError(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", status)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: "portfolio"}, nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "maintenance", se.Body)
	assert.True(t, se.Retryable())

	status = http.StatusBadRequest
	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: "portfolio"}, nil)
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Retryable())
}
