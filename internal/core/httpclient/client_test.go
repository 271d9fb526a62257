package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOutbound_PooledTransport(t *testing.T) {
	c := NewOutbound()
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport %T want *http.Transport", c.Transport)
	}
	if tr.MaxIdleConnsPerHost < 2 || c.Timeout <= 0 {
		t.Fatalf("unexpected pool config: perHost=%d timeout=%s", tr.MaxIdleConnsPerHost, c.Timeout)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
