package kafka

import (
	"errors"
	"strings"
	"time"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
)

type HexData struct {
	RestaurantHexID string `json:"Restaurant_hex_id"`
	DeliveryHexID   string `json:"Delivery_hex_id"`
}

// CommitEvent carries the same body as POST /update/ plus an idempotency id.
type CommitEvent struct {
	ID                string    `json:"id"`
	HexData           HexData   `json:"hex_data"`
	Exists            bool      `json:"exists"`
	PredictedDuration float64   `json:"predicted_duration"`
	TS                time.Time `json:"ts"`
}

func (e CommitEvent) Pair() model.LocationPair {
	return model.LocationPair{
		Source:      model.SpatialCell(strings.TrimSpace(e.HexData.RestaurantHexID)),
		Destination: model.SpatialCell(strings.TrimSpace(e.HexData.DeliveryHexID)),
	}
}

func (e CommitEvent) Validate() error {
	var errs []error
	if strings.TrimSpace(e.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(e.HexData.RestaurantHexID) == "" {
		errs = append(errs, errors.New("hex_data.Restaurant_hex_id is required"))
	}
	if strings.TrimSpace(e.HexData.DeliveryHexID) == "" {
		errs = append(errs, errors.New("hex_data.Delivery_hex_id is required"))
	}
	return errors.Join(errs...)
}
