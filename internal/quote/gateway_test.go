package quote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *YahooGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewYahooGateway(srv.URL, 2*time.Second)
}

func TestQuoteParsesChartMeta(t *testing.T) {
	var gotPath, gotUA string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL","longName":"Apple Inc.","shortName":"Apple","regularMarketPrice":187.2199}}],"error":null}}`))
	})

	q, err := g.Quote(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Equal(t, userAgent, gotUA)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.Equal(t, int64(18722), q.Price)
}

func TestQuoteNameFallback(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"chart":{"result":[{"meta":{"symbol":"X","shortName":"Short X","regularMarketPrice":1}}]}}`, "Short X"},
		{`{"chart":{"result":[{"meta":{"symbol":"X","longName":"  ","regularMarketPrice":1}}]}}`, "X"},
	}
	for _, tc := range cases {
		body := tc.body
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		q, err := g.Quote(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, tc.want, q.Name)
	}
}

func TestQuoteFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not found": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"chart":{"result":null}}`, http.StatusNotFound)
		},
		"empty result": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":[]}}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":`))
		},
		"missing price": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"X"}}]}}`))
		},
		"zero price": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"X","regularMarketPrice":0}}]}}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			g := newTestGateway(t, h)
			_, err := g.Quote(context.Background(), "X")
			assert.ErrorIs(t, err, ErrLookupFailed)
		})
	}
}

func TestQuoteEmptySymbolSkipsNetwork(t *testing.T) {
	var hits int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	_, err := g.Quote(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestQuoteIsNotCached(t *testing.T) {
	var hits int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"X","regularMarketPrice":2.5}}]}}`))
	})
	for i := 0; i < 3; i++ {
		_, err := g.Quote(context.Background(), "X")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestQuoteUnreachable(t *testing.T) {
	g := NewYahooGateway("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := g.Quote(context.Background(), "X")
	assert.ErrorIs(t, err, ErrLookupFailed)
}
