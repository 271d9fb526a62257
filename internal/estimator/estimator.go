// Package estimator defines the fallback duration model consulted when a
// location pair has no historical edge.
package estimator

import (
	"context"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
)

// Column names in the order the model was trained with. Artifacts must list
// their features in exactly this order.
const (
	RoadTrafficDensity = "Road_traffic_density"
	TypeOfVehicle      = "Type_of_vehicle"
	DistanceMeters     = "Distance(m)"
	WeatherConditions  = "Weatherconditions"
	VehicleCondition   = "Vehicle_condition"
	MultipleDeliveries = "multiple_deliveries"
)

var featureOrder = [...]string{
	RoadTrafficDensity,
	TypeOfVehicle,
	DistanceMeters,
	WeatherConditions,
	VehicleCondition,
	MultipleDeliveries,
}

// FeatureOrder returns a copy of the canonical column order.
func FeatureOrder() []string {
	out := make([]string, len(featureOrder))
	copy(out, featureOrder[:])
	return out
}

// Feature is one column of the input vector. Categorical columns carry the raw
// label in Text; numeric ones carry Num.
type Feature struct {
	Name        string
	Categorical bool
	Text        string
	Num         float64
}

// Vector lays the conditions out in FeatureOrder.
func Vector(c model.DeliveryConditions) []Feature {
	return []Feature{
		{Name: RoadTrafficDensity, Categorical: true, Text: c.RoadTrafficDensity},
		{Name: TypeOfVehicle, Categorical: true, Text: c.TypeOfVehicle},
		{Name: DistanceMeters, Num: c.DistanceMeters},
		{Name: WeatherConditions, Categorical: true, Text: c.WeatherConditions},
		{Name: VehicleCondition, Num: float64(c.VehicleCondition)},
		{Name: MultipleDeliveries, Num: float64(c.MultipleDeliveries)},
	}
}

// Estimator predicts a duration in minutes. Implementations must be safe for
// concurrent use; prediction has no side effects beyond a one-time model load.
type Estimator interface {
	Predict(ctx context.Context, c model.DeliveryConditions) (float64, error)
}

// Func adapts a plain function to Estimator.
type Func func(ctx context.Context, c model.DeliveryConditions) (float64, error)

func (f Func) Predict(ctx context.Context, c model.DeliveryConditions) (float64, error) {
	return f(ctx, c)
}
