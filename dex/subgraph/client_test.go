package subgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelpento.lv/dexarb/utils/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestClientQuery(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 5, req.Variables["first"])

		_, _ = w.Write([]byte(`{"data":{"pools":[{"id":"0xabc"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, " secret ", zaptest.NewLogger(t), WithRetry(fastRetry()), WithRateLimit(100, 1))

	var out struct {
		Pools []struct {
			ID string `json:"id"`
		} `json:"pools"`
	}
	require.NoError(t, c.Query(context.Background(), "query { pools }", map[string]any{"first": 5}, &out))
	require.Len(t, out.Pools, 1)
	assert.Equal(t, "0xabc", out.Pools[0].ID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name          string
		handler       func(call int32, w http.ResponseWriter)
		expectError   bool
		errorContains string
		calls         int32
	}{
		{
			name: "client error is not retried",
			handler: func(_ int32, w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte("bad query"))
			},
			expectError:   true,
			errorContains: "status 400: bad query",
			calls:         1,
		},
		{
			name: "server error is retried until success",
			handler: func(call int32, w http.ResponseWriter) {
				if call < 3 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				_, _ = w.Write([]byte(`{"data":{}}`))
			},
			calls: 3,
		},
		{
			name: "rate limited is retried",
			handler: func(_ int32, w http.ResponseWriter) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			expectError:   true,
			errorContains: "max retry attempts reached",
			calls:         3,
		},
		{
			name: "graphql errors surface the first message",
			handler: func(_ int32, w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"errors":[{"message":"indexer unavailable"}]}`))
			},
			expectError:   true,
			errorContains: "graphql error: indexer unavailable",
			calls:         3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.handler(atomic.AddInt32(&calls, 1), w)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", zaptest.NewLogger(t), WithRetry(fastRetry()))
			var out map[string]any
			err := c.Query(context.Background(), "query { pools }", nil, &out)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.calls, atomic.LoadInt32(&calls))
		})
	}
}
