// README: Truck handlers: owner truck management, location updates and nearby search.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"haulbook/internal/http/middleware"
	"haulbook/internal/modules/fleet"
	"haulbook/internal/modules/matching"
	"haulbook/internal/types"
)

type TruckService interface {
	Get(ctx context.Context, ownerID, truckID types.ID) (*fleet.Truck, error)
	Register(ctx context.Context, ownerID types.ID, cmd fleet.RegisterCommand) (*fleet.Truck, error)
	Update(ctx context.Context, ownerID, truckID types.ID, cmd fleet.UpdateCommand) (*fleet.Truck, error)
	Delete(ctx context.Context, ownerID, truckID types.ID) error
	ListByOwner(ctx context.Context, ownerID types.ID) ([]*fleet.Truck, error)
	UpdateLocation(ctx context.Context, ownerID, truckID types.ID, u fleet.LocationUpdate) (*fleet.Truck, error)
}

type NearbySearch interface {
	Nearby(ctx context.Context, q matching.NearbyQuery) ([]matching.RankedTruck, error)
}

type TruckHandler struct {
	trucks TruckService
	nearby NearbySearch
	log    *slog.Logger
}

func NewTruckHandler(trucks TruckService, nearby NearbySearch, log *slog.Logger) *TruckHandler {
	return &TruckHandler{trucks: trucks, nearby: nearby, log: log}
}

type truckResponse struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	VehicleNumber   string    `json:"vehicle_number"`
	VehicleTypeID   string    `json:"vehicle_type_id"`
	IsAvailable     bool      `json:"is_available"`
	Status          string    `json:"status"`
	CurrentLocation string    `json:"current_location"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toTruckResponse(t *fleet.Truck) truckResponse {
	r := truckResponse{
		ID:              string(t.ID),
		OwnerID:         string(t.OwnerID),
		VehicleNumber:   t.VehicleNumber,
		VehicleTypeID:   string(t.VehicleTypeID),
		IsAvailable:     t.IsAvailable,
		Status:          string(t.Status),
		CurrentLocation: t.CurrentLocation,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.Position != nil {
		lat, lng := t.Position.Lat, t.Position.Lng
		r.Latitude, r.Longitude = &lat, &lng
	}
	return r
}

type nearbyTruckResponse struct {
	truckResponse
	DistanceKm float64 `json:"distance_km"`
}

func (h *TruckHandler) Get(c *gin.Context) {
	t, err := h.trucks.Get(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toTruckResponse(t))
}

type registerTruckReq struct {
	VehicleNumber   string   `json:"vehicle_number"`
	VehicleTypeID   string   `json:"vehicle_type_id"`
	CurrentLocation string   `json:"current_location"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
}

func (h *TruckHandler) Register(c *gin.Context) {
	var req registerTruckReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(c, http.StatusUnprocessableEntity, "latitude and longitude must be given together")
		return
	}
	cmd := fleet.RegisterCommand{
		VehicleNumber:   req.VehicleNumber,
		VehicleTypeID:   types.ID(req.VehicleTypeID),
		CurrentLocation: req.CurrentLocation,
	}
	if req.Latitude != nil {
		cmd.Position = &types.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	}
	t, err := h.trucks.Register(c.Request.Context(), middleware.CallerUID(c), cmd)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusCreated, toTruckResponse(t))
}

type updateTruckReq struct {
	VehicleNumber *string `json:"vehicle_number"`
	VehicleTypeID *string `json:"vehicle_type_id"`
	Status        *string `json:"status"`
}

func (h *TruckHandler) Update(c *gin.Context) {
	var req updateTruckReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := fleet.UpdateCommand{VehicleNumber: req.VehicleNumber}
	if req.VehicleTypeID != nil {
		vt := types.ID(*req.VehicleTypeID)
		cmd.VehicleTypeID = &vt
	}
	if req.Status != nil {
		st := fleet.Status(*req.Status)
		cmd.Status = &st
	}
	t, err := h.trucks.Update(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id")), cmd)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toTruckResponse(t))
}

func (h *TruckHandler) Delete(c *gin.Context) {
	if err := h.trucks.Delete(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TruckHandler) ListByOwner(c *gin.Context) {
	ownerID := types.ID(c.Param("owner_id"))
	if ownerID != middleware.CallerUID(c) {
		writeError(c, http.StatusForbidden, "forbidden: owner does not match authenticated user")
		return
	}
	list, err := h.trucks.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	out := make([]truckResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTruckResponse(t))
	}
	writeJSON(c, http.StatusOK, out)
}

type updateLocationReq struct {
	CurrentLocation string   `json:"current_location"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
}

func (h *TruckHandler) UpdateLocation(c *gin.Context) {
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(c, http.StatusUnprocessableEntity, "latitude and longitude must be given together")
		return
	}
	u := fleet.LocationUpdate{Text: req.CurrentLocation}
	if req.Latitude != nil {
		u.Position = &types.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	}
	t, err := h.trucks.UpdateLocation(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id")), u)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toTruckResponse(t))
}

func (h *TruckHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusUnprocessableEntity, "lat and lng are required numbers")
		return
	}
	q := matching.NearbyQuery{
		Point:         types.Point{Lat: lat, Lng: lng},
		VehicleTypeID: types.ID(c.Query("vehicle_type_id")),
	}
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusUnprocessableEntity, "radius_km must be a positive number")
			return
		}
		q.RadiusKm = r
	}
	ranked, err := h.nearby.Nearby(c.Request.Context(), q)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	out := make([]nearbyTruckResponse, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, nearbyTruckResponse{truckResponse: toTruckResponse(r.Truck), DistanceKm: r.DistanceKm})
	}
	writeJSON(c, http.StatusOK, out)
}
