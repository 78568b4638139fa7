package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

func TestGetSetsRotatingHeaders(t *testing.T) {
	var gotUA, gotReferer string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := NewClient(0, 0, RetryStrategy{Attempts: 1}, nil)
	body, err := c.Get(ts.URL)
	require.Nil(t, err)
	require.Equal(t, `{"ok":true}`, string(body))

	require.Contains(t, uaList, gotUA)
	_, err = uuid.Parse(gotReferer)
	require.Nil(t, err)
}

func TestGetRetriesThenSucceeds(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := NewClient(0, 0, RetryStrategy{Attempts: 3, Delay: 1 * time.Millisecond}, nil)
	body, err := c.Get(ts.URL)
	require.Nil(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, 3, calls)
}

func TestGetExhaustsAttempts(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(0, 0, RetryStrategy{Attempts: 3, Delay: 1 * time.Millisecond}, nil)
	_, err := c.Get(ts.URL)
	require.ErrorIs(t, err, common.ErrNetwork)
	require.Equal(t, 3, calls)

	reqErr, ok := err.(common.QuoteReqError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadGateway, reqErr.Code)
	require.True(t, reqErr.IsVendorSide)
}

func TestGetHonoursRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := NewClient(0, 0, RetryStrategy{Attempts: 2, Delay: 1 * time.Millisecond}, nil)
	_, err := c.Get(ts.URL)
	require.Nil(t, err)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, time.Since(start), 1*time.Second)
}

func TestGetDoesNotRetryHopelessURLs(t *testing.T) {
	c := NewClient(0, 0, RetryStrategy{Attempts: 3, Delay: 1 * time.Millisecond}, nil)
	_, err := c.Get("http://invalid url with spaces")
	require.ErrorIs(t, err, common.ErrNetwork)
}
