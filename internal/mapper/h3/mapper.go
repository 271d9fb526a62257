package h3mapper

import (
	"fmt"
	"strings"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/mapper"
)

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

func (m *Mapper) Validate(cell model.SpatialCell) error {
	_, err := parse(cell)
	return err
}

// Centroid returns the cell center in degrees.
func (m *Mapper) Centroid(cell model.SpatialCell) (model.LatLng, error) {
	c, err := parse(cell)
	if err != nil {
		return model.LatLng{}, err
	}
	ll, err := h3.CellToLatLng(c)
	if err != nil {
		return model.LatLng{}, fmt.Errorf("h3 cell to latlng %q: %w", cell, err)
	}
	return model.LatLng{Lat: ll.Lat, Lng: ll.Lng}, nil
}

// CellAt indexes a coordinate at the given resolution.
func (m *Mapper) CellAt(ll model.LatLng, res int) (model.SpatialCell, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.NewLatLng(ll.Lat, ll.Lng), res)
	if err != nil {
		return "", fmt.Errorf("h3 latlng to cell: %w", err)
	}
	return model.SpatialCell(c.String()), nil
}

// --- helpers ---

func parse(cell model.SpatialCell) (h3.Cell, error) {
	s := strings.TrimSpace(string(cell))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", model.ErrInvalidCell)
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: parse %q: %w", model.ErrInvalidCell, s, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidCell, s)
	}
	return c, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
