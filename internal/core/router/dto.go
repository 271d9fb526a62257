package router

import (
	"strings"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
)

// HexData names the restaurant (source) and delivery (destination) cells.
type HexData struct {
	RestaurantHexID string `json:"Restaurant_hex_id" validate:"required"`
	DeliveryHexID   string `json:"Delivery_hex_id" validate:"required"`
}

func (h HexData) Pair() model.LocationPair {
	return model.LocationPair{
		Source:      model.SpatialCell(strings.TrimSpace(h.RestaurantHexID)),
		Destination: model.SpatialCell(strings.TrimSpace(h.DeliveryHexID)),
	}
}

type PredictRequest struct {
	HexData HexData                  `json:"hex_data" validate:"required"`
	Data    model.DeliveryConditions `json:"data" validate:"required"`
}

type UpdateRequest struct {
	HexData           HexData  `json:"hex_data" validate:"required"`
	Exists            *bool    `json:"exists" validate:"required"`
	PredictedDuration *float64 `json:"predicted_duration" validate:"required,gte=0"`
}

type PredictResponse struct {
	Duration float64               `json:"duration"`
	Exist    bool                  `json:"exist"`
	Route    *model.RouteCandidate `json:"route,omitempty"`
	Status   int                   `json:"status"`
}

type ResolveCommitResponse struct {
	Duration float64 `json:"duration"`
	Exist    bool    `json:"exist"`
	Action   string  `json:"action"`
	Status   int     `json:"status"`
}

type MessageResponse struct {
	Msg    string `json:"msg"`
	Status int    `json:"status"`
}

type EdgeResponse struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Duration    float64 `json:"duration"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}
