// Package osrm is a route.Provider backed by an OSRM HTTP server.
package osrm

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	polyline "github.com/twpayne/go-polyline"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/httpclient"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/mapper"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/route"
)

const maxBody = 4 << 20

// OSRM answers 400 with this code when the points are not connected.
const codeNoRoute = "NoRoute"

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithProfile(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.profile = p
		}
	}
}

func WithAlternatives(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.alternatives = n
		}
	}
}

// WithTimeout bounds each upstream call; expiry surfaces as ErrProviderUnreachable.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type Client struct {
	http         *http.Client
	baseURL      string
	profile      string
	alternatives int
	timeout      time.Duration
	cells        mapper.Interface

	inflight singleflight.Group
}

var _ route.Provider = (*Client)(nil)

func New(baseURL string, cells mapper.Interface, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("osrm base url is required")
	}
	if cells == nil {
		return nil, errors.New("osrm: cell mapper is required")
	}
	c := &Client{
		http:         httpclient.NewOutbound(),
		baseURL:      baseURL,
		profile:      "driving",
		alternatives: 3,
		timeout:      5 * time.Second,
		cells:        cells,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// GetRoutes resolves both cells to their centroids and asks OSRM for up to
// the configured number of alternatives. Concurrent calls for the same pair
// share one upstream request.
func (c *Client) GetRoutes(ctx context.Context, source, destination model.SpatialCell) ([]model.RouteCandidate, error) {
	from, err := c.cells.Centroid(source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	to, err := c.cells.Centroid(destination)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	// the shared call outlives any single caller; c.timeout still bounds it
	key := string(source) + "|" + string(destination)
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (any, error) {
		start := time.Now()
		routes, err := c.fetch(shared, from, to)
		observability.ObserveRoute(err, len(routes), time.Since(start).Seconds())
		return routes, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", model.ErrProviderUnreachable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRoutes(res.Val.([]model.RouteCandidate)), nil
	}
}

type response struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Routes    []apiRoute `json:"routes"`
	Waypoints []waypoint `json:"waypoints"`
}

type apiRoute struct {
	Geometry string  `json:"geometry"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// location is [lon, lat]
type waypoint struct {
	Location []float64 `json:"location"`
}

func (c *Client) fetch(ctx context.Context, from, to model.LatLng) ([]model.RouteCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/route/v1/%s/%s,%s;%s,%s?alternatives=%d",
		c.baseURL, c.profile,
		coord(from.Lng), coord(from.Lat), coord(to.Lng), coord(to.Lat),
		c.alternatives,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrProviderUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", model.ErrProviderUnreachable, err)
	}

	var out response
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Code == codeNoRoute {
			return []model.RouteCandidate{}, nil
		}
		return nil, &model.ProviderError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if decodeErr != nil {
		return nil, &model.ProviderError{
			StatusCode: resp.StatusCode,
			Body:       "decode response: " + decodeErr.Error(),
		}
	}
	if out.Code != "" && out.Code != "Ok" {
		if out.Code == codeNoRoute {
			return []model.RouteCandidate{}, nil
		}
		return nil, &model.ProviderError{StatusCode: resp.StatusCode, Body: out.Code + ": " + out.Message}
	}

	return toCandidates(out)
}

func toCandidates(out response) ([]model.RouteCandidate, error) {
	var startPt, endPt model.LatLng
	if len(out.Waypoints) >= 2 {
		startPt = lonLat(out.Waypoints[0].Location)
		endPt = lonLat(out.Waypoints[len(out.Waypoints)-1].Location)
	}

	routes := make([]model.RouteCandidate, 0, len(out.Routes))
	for i, r := range out.Routes {
		path, err := decodePath(r.Geometry)
		if err != nil {
			return nil, &model.ProviderError{
				StatusCode: http.StatusOK,
				Body:       fmt.Sprintf("route %d geometry: %v", i, err),
			}
		}
		routes = append(routes, model.RouteCandidate{
			Path:            path,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
			StartPoint:      startPt,
			EndPoint:        endPt,
		})
	}

	// stable so ties keep OSRM's native order
	slices.SortStableFunc(routes, func(a, b model.RouteCandidate) int {
		return cmp.Or(
			cmp.Compare(a.DurationSeconds, b.DurationSeconds),
			cmp.Compare(a.DistanceMeters, b.DistanceMeters),
		)
	})
	return routes, nil
}

func decodePath(geometry string) ([]model.LatLng, error) {
	if geometry == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(geometry))
	if err != nil {
		return nil, err
	}
	path := make([]model.LatLng, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		path = append(path, model.LatLng{Lat: c[0], Lng: c[1]})
	}
	return path, nil
}

func lonLat(loc []float64) model.LatLng {
	if len(loc) < 2 {
		return model.LatLng{}
	}
	return model.LatLng{Lat: loc[1], Lng: loc[0]}
}

func coord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// singleflight hands every waiter the same slice
func cloneRoutes(in []model.RouteCandidate) []model.RouteCandidate {
	out := make([]model.RouteCandidate, len(in))
	for i, r := range in {
		r.Path = slices.Clone(r.Path)
		out[i] = r
	}
	return out
}
