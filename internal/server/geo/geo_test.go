package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func gbk(t *testing.T, s string) []byte {
	t.Helper()
	b, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return b
}

func newLocator(t *testing.T, endpoint string, timeout time.Duration) *Locator {
	t.Helper()
	l, err := NewLocator(endpoint, timeout)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestIsPrivate(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1":    true,
		"::1":          true,
		"localhost":    true,
		"10.1.2.3":     true,
		"192.168.0.10": true,
		"172.16.5.4":   true,
		"fe80::1":      true,
		"8.8.8.8":      false,
		"172.32.0.1":   false,
		"garbage":      false,
	}
	for ip, want := range tests {
		assert.Equal(t, want, IsPrivate(ip), ip)
	}
}

func TestLocator_Locate(t *testing.T) {
	ctx := context.Background()

	t.Run("private addresses skip the lookup", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		l := newLocator(t, srv.URL, time.Second)
		assert.Equal(t, LocationLocal, l.Locate(ctx, "192.168.1.1"))
		assert.Zero(t, hits.Load())
	})

	t.Run("decodes gbk addr", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "8.8.8.8", r.URL.Query().Get("ip"))
			assert.Equal(t, "true", r.URL.Query().Get("json"))
			w.Write(gbk(t, `  {"ip":"8.8.8.8","addr":"美国 加利福尼亚州 "}`))
		}))
		defer srv.Close()

		l := newLocator(t, srv.URL, time.Second)
		assert.Equal(t, "美国 加利福尼亚州", l.Locate(ctx, "8.8.8.8"))
	})

	t.Run("falls back to province and city", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(gbk(t, `{"addr":"","pro":"广东省","city":"深圳市"}`))
		}))
		defer srv.Close()

		l := newLocator(t, srv.URL, time.Second)
		assert.Equal(t, "广东省 深圳市", l.Locate(ctx, "1.2.3.4"))
	})

	t.Run("results are cached", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte(`{"addr":"Somewhere"}`))
		}))
		defer srv.Close()

		l := newLocator(t, srv.URL, time.Second)
		assert.Equal(t, "Somewhere", l.Locate(ctx, "1.2.3.4"))
		l.cache.Wait()
		assert.Equal(t, "Somewhere", l.Locate(ctx, "1.2.3.4"))
		assert.EqualValues(t, 1, hits.Load())
	})

	t.Run("failures degrade to unknown", func(t *testing.T) {
		handlers := map[string]http.HandlerFunc{
			"server error": func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			"bad json": func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			"timeout": func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
		}
		for name, h := range handlers {
			t.Run(name, func(t *testing.T) {
				srv := httptest.NewServer(h)
				defer srv.Close()

				l := newLocator(t, srv.URL, 50*time.Millisecond)
				assert.Equal(t, LocationUnknown, l.Locate(ctx, "1.2.3.4"))
			})
		}
	})

	t.Run("empty endpoint disables lookups", func(t *testing.T) {
		l := newLocator(t, "", time.Second)
		assert.Equal(t, LocationUnknown, l.Locate(ctx, "8.8.8.8"))
		assert.Equal(t, LocationLocal, l.Locate(ctx, "127.0.0.1"))
	})
}
