// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"
)

// SpatialCell is an H3 cell index in its canonical hex string form.
type SpatialCell string

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationPair is directed: Source -> Destination only.
type LocationPair struct {
	Source      SpatialCell
	Destination SpatialCell
}

func (p LocationPair) String() string {
	return fmt.Sprintf("%s->%s", p.Source, p.Destination)
}

type HistoricalEdge struct {
	Pair     LocationPair
	Duration float64 // minutes
}

type RouteCandidate struct {
	Path            []LatLng `json:"route"`
	DistanceMeters  float64  `json:"distance"`
	DurationSeconds float64  `json:"duration"`
	StartPoint      LatLng   `json:"start_point"`
	EndPoint        LatLng   `json:"end_point"`
}

// DurationMinutes rounds up so a route is never reported faster than it is.
func (r RouteCandidate) DurationMinutes() float64 {
	return math.Ceil(r.DurationSeconds / 60)
}

// DeliveryConditions mirrors the feature columns the fallback model was trained on.
type DeliveryConditions struct {
	RoadTrafficDensity string  `json:"Road_traffic_density" validate:"required"`
	TypeOfVehicle      string  `json:"Type_of_vehicle" validate:"required"`
	DistanceMeters     float64 `json:"Distance(m)" validate:"gte=0"`
	WeatherConditions  string  `json:"Weatherconditions" validate:"required"`
	VehicleCondition   int     `json:"Vehicle_condition" validate:"gte=0"`
	MultipleDeliveries int     `json:"multiple_deliveries" validate:"gte=0"`
}

type ResolutionResult struct {
	DurationMinutes float64
	ExistedInGraph  bool

	// diagnostics, not persisted
	RouteMinutes    float64
	BaselineMinutes float64
	OptimalRoute    *RouteCandidate
}
