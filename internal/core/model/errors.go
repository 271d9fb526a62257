package model

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable    = errors.New("graph store unavailable")
	ErrEdgeNotFound        = errors.New("edge not found")
	ErrSourceNodeMissing   = errors.New("source node missing")
	ErrEdgeExists          = errors.New("edge already exists")
	ErrProviderUnreachable = errors.New("route provider unreachable")
	ErrNoRouteAvailable    = errors.New("no route available")
	ErrModelLoad           = errors.New("model load failed")
	ErrFeatureShape        = errors.New("feature vector does not match model")
	ErrInvalidPrediction   = errors.New("model produced a non-finite prediction")
	ErrInvalidCell         = errors.New("invalid spatial cell")
)

// ProviderError is a non-2xx answer from the route provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("route provider status %d", e.StatusCode)
	}
	return fmt.Sprintf("route provider status %d: %s", e.StatusCode, e.Body)
}
