// README: Booking handlers: create, query, assign, status updates and cancellation.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"haulbook/internal/http/middleware"
	"haulbook/internal/modules/booking"
	"haulbook/internal/types"
)

type BookingService interface {
	Create(ctx context.Context, requesterID types.ID, cmd booking.CreateCommand) (*booking.Booking, error)
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	List(ctx context.Context, f booking.Filter) ([]*booking.Booking, error)
	History(ctx context.Context, bookingID types.ID) ([]*booking.HistoryEntry, error)
	AssignTruck(ctx context.Context, bookingID, actorID types.ID, cmd booking.AssignCommand) (*booking.Booking, error)
	UpdateStatus(ctx context.Context, bookingID, actorID types.ID, u booking.StatusUpdate) (*booking.Booking, error)
	Cancel(ctx context.Context, bookingID, requesterID types.ID) (*booking.Booking, error)
}

type BookingHandler struct {
	bookings BookingService
	log      *slog.Logger
}

func NewBookingHandler(svc BookingService, log *slog.Logger) *BookingHandler {
	return &BookingHandler{bookings: svc, log: log}
}

type bookingResponse struct {
	ID                   string     `json:"id"`
	RequesterID          string     `json:"requester_id"`
	MaterialID           string     `json:"material_id"`
	VehicleTypeID        string     `json:"vehicle_type_id"`
	Source               string     `json:"source"`
	Destination          string     `json:"destination"`
	Quantity             string     `json:"quantity"`
	Status               string     `json:"status"`
	State                string     `json:"state"`
	AssignedTruckID      *string    `json:"assigned_truck_id"`
	BookingTime          time.Time  `json:"booking_time"`
	ExpectedDeliveryTime *time.Time `json:"expected_delivery_time"`
	ActualDeliveryTime   *time.Time `json:"actual_delivery_time"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toBookingResponse(b *booking.Booking) bookingResponse {
	r := bookingResponse{
		ID:                   string(b.ID),
		RequesterID:          string(b.RequesterID),
		MaterialID:           string(b.MaterialID),
		VehicleTypeID:        string(b.VehicleTypeID),
		Source:               b.Source,
		Destination:          b.Destination,
		Quantity:             b.Quantity.String(),
		Status:               string(b.Status),
		State:                string(b.State),
		BookingTime:          b.BookingTime,
		ExpectedDeliveryTime: b.ExpectedDeliveryTime,
		ActualDeliveryTime:   b.ActualDeliveryTime,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
	if b.AssignedTruckID != nil {
		id := string(*b.AssignedTruckID)
		r.AssignedTruckID = &id
	}
	return r
}

type historyResponse struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     *string   `json:"notes"`
}

func toHistoryResponse(e *booking.HistoryEntry) historyResponse {
	return historyResponse{
		ID:        string(e.ID),
		BookingID: string(e.BookingID),
		Status:    e.Status,
		UpdatedAt: e.UpdatedAt,
		Notes:     e.Notes,
	}
}

type createBookingReq struct {
	MaterialID    string          `json:"material_id"`
	VehicleTypeID string          `json:"vehicle_type_id"`
	Source        string          `json:"source"`
	Destination   string          `json:"destination"`
	Quantity      decimal.Decimal `json:"quantity"`
	BookingTime   *time.Time      `json:"booking_time"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := booking.CreateCommand{
		MaterialID:    types.ID(req.MaterialID),
		VehicleTypeID: types.ID(req.VehicleTypeID),
		Source:        req.Source,
		Destination:   req.Destination,
		Quantity:      req.Quantity,
	}
	if req.BookingTime != nil {
		cmd.BookingTime = *req.BookingTime
	}
	b, err := h.bookings.Create(c.Request.Context(), middleware.CallerUID(c), cmd)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) List(c *gin.Context) {
	list, err := h.bookings.List(c.Request.Context(), booking.Filter{
		OwnerID: middleware.CallerUID(c),
		Status:  booking.Status(c.Query("status")),
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	out := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBookingResponse(b))
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, ok := h.ownedBooking(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) History(c *gin.Context) {
	b, ok := h.ownedBooking(c)
	if !ok {
		return
	}
	entries, err := h.bookings.History(c.Request.Context(), b.ID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHistoryResponse(e))
	}
	writeJSON(c, http.StatusOK, out)
}

type assignTruckReq struct {
	TruckID *string `json:"truck_id"`
}

func (h *BookingHandler) AssignTruck(c *gin.Context) {
	var req assignTruckReq
	// The body is optional; no body means automatic selection.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var cmd booking.AssignCommand
	if req.TruckID != nil {
		id := types.ID(*req.TruckID)
		cmd.TruckID = &id
	}
	b, err := h.bookings.AssignTruck(c.Request.Context(), types.ID(c.Param("id")), middleware.CallerUID(c), cmd)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

type updateStatusReq struct {
	Status               string     `json:"status"`
	State                *string    `json:"state"`
	ExpectedDeliveryTime *time.Time `json:"expected_delivery_time"`
	ActualDeliveryTime   *time.Time `json:"actual_delivery_time"`
	Notes                string     `json:"notes"`
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	u := booking.StatusUpdate{
		Status:           booking.Status(req.Status),
		ExpectedDelivery: req.ExpectedDeliveryTime,
		ActualDelivery:   req.ActualDeliveryTime,
		Notes:            req.Notes,
	}
	if req.State != nil {
		st := booking.State(*req.State)
		u.State = &st
	}
	b, err := h.bookings.UpdateStatus(c.Request.Context(), types.ID(c.Param("id")), middleware.CallerUID(c), u)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	b, err := h.bookings.Cancel(c.Request.Context(), types.ID(c.Param("id")), middleware.CallerUID(c))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

// ownedBooking loads the booking named in the path and checks the caller owns it.
func (h *BookingHandler) ownedBooking(c *gin.Context) (*booking.Booking, bool) {
	b, err := h.bookings.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, h.log, err)
		return nil, false
	}
	if b.RequesterID != middleware.CallerUID(c) {
		writeError(c, http.StatusForbidden, "forbidden: booking belongs to another user")
		return nil, false
	}
	return b, true
}
