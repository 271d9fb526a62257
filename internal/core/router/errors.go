package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/mutator"
)

const codeInvalidRequest = "invalid_request"

// classify maps a failure to its HTTP status and machine-readable code.
func classify(err error) (int, string) {
	var pe *model.ProviderError
	switch {
	case errors.Is(err, model.ErrInvalidCell), errors.Is(err, mutator.ErrInvalidDuration):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, model.ErrEdgeNotFound):
		return http.StatusNotFound, "edge_not_found"
	case errors.Is(err, model.ErrSourceNodeMissing):
		return http.StatusUnprocessableEntity, "source_node_missing"
	case errors.Is(err, model.ErrNoRouteAvailable):
		return http.StatusUnprocessableEntity, "no_route_available"
	case errors.Is(err, model.ErrFeatureShape):
		return http.StatusUnprocessableEntity, "feature_shape"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "provider_error"
	case errors.Is(err, model.ErrProviderUnreachable):
		return http.StatusServiceUnavailable, "provider_unreachable"
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, model.ErrModelLoad):
		return http.StatusInternalServerError, "model_unavailable"
	case errors.Is(err, model.ErrInvalidPrediction):
		return http.StatusInternalServerError, "invalid_prediction"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg, Status: status})
}
