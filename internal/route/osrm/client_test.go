package osrm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	polyline "github.com/twpayne/go-polyline"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	h3mapper "github.com/mohammed-shakir/h3-delivery-eta/internal/mapper/h3"
)

func testCells(t *testing.T) (*h3mapper.Mapper, model.SpatialCell, model.SpatialCell) {
	t.Helper()
	m := h3mapper.New()
	src, err := m.CellAt(model.LatLng{Lat: 12.9716, Lng: 77.5946}, 6)
	if err != nil {
		t.Fatalf("CellAt: %v", err)
	}
	dst, err := m.CellAt(model.LatLng{Lat: 12.9352, Lng: 77.6245}, 6)
	if err != nil {
		t.Fatalf("CellAt: %v", err)
	}
	return m, src, dst
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, model.SpatialCell, model.SpatialCell) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m, src, dst := testCells(t)
	c, err := New(srv.URL, m, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, src, dst
}

func TestGetRoutes_SortsByDurationThenDistance(t *testing.T) {
	geom := string(polyline.EncodeCoords([][]float64{{12.97, 77.59}, {12.95, 77.61}, {12.93, 77.62}}))
	var gotPath, gotQuery string

	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"code": "Ok",
			"routes": [
				{"geometry": %[1]q, "distance": 900, "duration": 1800},
				{"geometry": %[1]q, "distance": 1200, "duration": 1500},
				{"geometry": %[1]q, "distance": 1000, "duration": 1500}
			],
			"waypoints": [{"location": [77.59, 12.97]}, {"location": [77.62, 12.93]}]
		}`, geom)
	})

	routes, err := c.GetRoutes(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("len=%d want 3", len(routes))
	}
	want := [][2]float64{{1500, 1000}, {1500, 1200}, {1800, 900}}
	for i, w := range want {
		if routes[i].DurationSeconds != w[0] || routes[i].DistanceMeters != w[1] {
			t.Fatalf("routes[%d]=(%v,%v) want %v", i, routes[i].DurationSeconds, routes[i].DistanceMeters, w)
		}
	}
	if routes[0].DurationMinutes() != 25 {
		t.Fatalf("optimal minutes=%v want 25", routes[0].DurationMinutes())
	}

	r0 := routes[0]
	if len(r0.Path) != 3 || r0.Path[0].Lat != 12.97 || r0.Path[0].Lng != 77.59 {
		t.Fatalf("decoded path=%+v", r0.Path)
	}
	if r0.StartPoint != (model.LatLng{Lat: 12.97, Lng: 77.59}) || r0.EndPoint != (model.LatLng{Lat: 12.93, Lng: 77.62}) {
		t.Fatalf("start/end = %+v / %+v", r0.StartPoint, r0.EndPoint)
	}

	if !strings.HasPrefix(gotPath, "/route/v1/driving/") || !strings.Contains(gotPath, ";") {
		t.Fatalf("path=%q", gotPath)
	}
	if gotQuery != "alternatives=3" {
		t.Fatalf("query=%q", gotQuery)
	}
}

func TestGetRoutes_CoordinatesAreLonLat(t *testing.T) {
	var gotPath string
	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[],"waypoints":[]}`))
	}, WithProfile("bike"), WithAlternatives(2))

	if _, err := c.GetRoutes(context.Background(), src, dst); err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}

	from, _ := h3mapper.New().Centroid(src)
	prefix := fmt.Sprintf("/route/v1/bike/%s,%s;", coord(from.Lng), coord(from.Lat))
	if !strings.HasPrefix(gotPath, prefix) {
		t.Fatalf("path=%q want prefix %q", gotPath, prefix)
	}
}

func TestGetRoutes_NoRouteIsEmptyNotError(t *testing.T) {
	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"NoRoute","message":"Impossible route between points"}`))
	})

	routes, err := c.GetRoutes(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}
	if routes == nil || len(routes) != 0 {
		t.Fatalf("routes=%v want empty non-nil", routes)
	}
}

func TestGetRoutes_ServerErrorIsProviderError(t *testing.T) {
	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.GetRoutes(context.Background(), src, dst)
	var pe *model.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err=%v want *ProviderError", err)
	}
	if pe.StatusCode != http.StatusInternalServerError || pe.Body != "boom" {
		t.Fatalf("ProviderError=%+v", pe)
	}
}

func TestGetRoutes_BadGeometryIsProviderError(t *testing.T) {
	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"geometry":"~","distance":1,"duration":1}],"waypoints":[]}`))
	})

	_, err := c.GetRoutes(context.Background(), src, dst)
	var pe *model.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err=%v want *ProviderError", err)
	}
}

func TestGetRoutes_TimeoutIsUnreachable(t *testing.T) {
	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.GetRoutes(context.Background(), src, dst)
	if !errors.Is(err, model.ErrProviderUnreachable) {
		t.Fatalf("err=%v want ErrProviderUnreachable", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced: %s", time.Since(start))
	}
}

func TestGetRoutes_ConnectionRefusedIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m, src, dst := testCells(t)
	c, err := New(url, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.GetRoutes(context.Background(), src, dst); !errors.Is(err, model.ErrProviderUnreachable) {
		t.Fatalf("err=%v want ErrProviderUnreachable", err)
	}
}

func TestGetRoutes_InvalidCellNeverCallsUpstream(t *testing.T) {
	var hits atomic.Int32
	c, _, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	_, err := c.GetRoutes(context.Background(), "nope", dst)
	if !errors.Is(err, model.ErrInvalidCell) {
		t.Fatalf("err=%v want ErrInvalidCell", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("upstream called %d times", hits.Load())
	}
}

func TestGetRoutes_CallersGetIndependentSlices(t *testing.T) {
	geom := string(polyline.EncodeCoords([][]float64{{1, 2}, {3, 4}}))
	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"code":"Ok","routes":[{"geometry":%q,"distance":1,"duration":60}],"waypoints":[]}`, geom)
	})

	a, err := c.GetRoutes(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}
	a[0].Path[0].Lat = 99

	b, err := c.GetRoutes(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}
	if b[0].Path[0].Lat != 1 {
		t.Fatalf("mutation leaked between calls: %+v", b[0].Path[0])
	}
}

func TestGetRoutes_SharedCallSurvivesFirstCallerCancel(t *testing.T) {
	geom := string(polyline.EncodeCoords([][]float64{{1, 2}, {3, 4}}))
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	var hits atomic.Int32

	c, src, dst := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		entered <- struct{}{}
		<-release
		_, _ = fmt.Fprintf(w, `{"code":"Ok","routes":[{"geometry":%q,"distance":1,"duration":60}],"waypoints":[]}`, geom)
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetRoutes(firstCtx, src, dst)
		firstErr <- err
	}()
	<-entered

	type result struct {
		routes []model.RouteCandidate
		err    error
	}
	second := make(chan result, 1)
	go func() {
		rs, err := c.GetRoutes(context.Background(), src, dst)
		second <- result{rs, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) || !errors.Is(err, model.ErrProviderUnreachable) {
			t.Fatalf("canceled caller err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("canceled caller did not return")
	}

	close(release)
	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("live caller err=%v", res.err)
		}
		if len(res.routes) != 1 {
			t.Fatalf("routes=%+v", res.routes)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("live caller did not return")
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits=%d want 1 shared call", hits.Load())
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", h3mapper.New()); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	if _, err := New("http://osrm:5000", nil); err == nil {
		t.Fatalf("expected error for nil mapper")
	}
}
