package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"haulbook/internal/http/handlers"
	httpmiddleware "haulbook/internal/http/middleware"
	"haulbook/internal/infra"
	"haulbook/internal/modules/fleet"
	"haulbook/internal/modules/matching"
	"haulbook/internal/types"
)

type stubTrucks struct {
	truck       *fleet.Truck
	err         error
	gotLoc      fleet.LocationUpdate
	gotBy       types.ID
	gotRegister fleet.RegisterCommand
	gotUpdate   fleet.UpdateCommand
	deleted     types.ID
}

func (s *stubTrucks) Get(_ context.Context, owner, _ types.ID) (*fleet.Truck, error) {
	s.gotBy = owner
	return s.truck, s.err
}

func (s *stubTrucks) Register(_ context.Context, owner types.ID, cmd fleet.RegisterCommand) (*fleet.Truck, error) {
	s.gotBy, s.gotRegister = owner, cmd
	if s.err != nil {
		return nil, s.err
	}
	t := *s.truck
	t.OwnerID, t.VehicleNumber = owner, cmd.VehicleNumber
	return &t, nil
}

func (s *stubTrucks) Update(_ context.Context, owner, _ types.ID, cmd fleet.UpdateCommand) (*fleet.Truck, error) {
	s.gotBy, s.gotUpdate = owner, cmd
	return s.truck, s.err
}

func (s *stubTrucks) Delete(_ context.Context, owner, id types.ID) error {
	s.gotBy = owner
	if s.err == nil {
		s.deleted = id
	}
	return s.err
}

func (s *stubTrucks) ListByOwner(_ context.Context, _ types.ID) ([]*fleet.Truck, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*fleet.Truck{s.truck}, nil
}

func (s *stubTrucks) UpdateLocation(_ context.Context, owner, _ types.ID, u fleet.LocationUpdate) (*fleet.Truck, error) {
	s.gotBy, s.gotLoc = owner, u
	if s.err != nil {
		return nil, s.err
	}
	t := *s.truck
	t.CurrentLocation, t.Position = u.Text, u.Position
	return &t, nil
}

type stubNearby struct {
	ranked []matching.RankedTruck
	err    error
	got    matching.NearbyQuery
}

func (s *stubNearby) Nearby(_ context.Context, q matching.NearbyQuery) ([]matching.RankedTruck, error) {
	s.got = q
	return s.ranked, s.err
}

func buildTruckRouter(verifier infra.TokenVerifier, trucks handlers.TruckService, nearby handlers.NearbySearch) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier))
	h := handlers.NewTruckHandler(trucks, nearby, quietLog)
	r.GET("/trucks/nearby", h.Nearby)
	r.GET("/trucks/owner/:owner_id", h.ListByOwner)
	r.POST("/trucks", h.Register)
	r.GET("/trucks/:id", h.Get)
	r.PUT("/trucks/:id", h.Update)
	r.DELETE("/trucks/:id", h.Delete)
	r.PUT("/trucks/:id/location", h.UpdateLocation)
	return r
}

func sampleTruck() *fleet.Truck {
	return &fleet.Truck{
		ID:              "t-01",
		OwnerID:         "owner-1",
		VehicleNumber:   "MH12AB1234",
		VehicleTypeID:   "10-TON",
		IsAvailable:     true,
		Status:          fleet.StatusAvailable,
		CurrentLocation: "Pune",
		Position:        &types.Point{Lat: 18.52, Lng: 73.85},
	}
}

func TestNearby_ParsesQuery(t *testing.T) {
	nearby := &stubNearby{ranked: []matching.RankedTruck{{Truck: sampleTruck(), DistanceKm: 2.5}}}
	r := buildTruckRouter(asUser("cust-1"), &stubTrucks{}, nearby)

	w := doRequest(r, http.MethodGet, "/trucks/nearby?lat=18.5&lng=73.8&radius_km=25&vehicle_type_id=10-TON", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if nearby.got.RadiusKm != 25 || nearby.got.VehicleTypeID != "10-TON" || nearby.got.Point.Lat != 18.5 {
		t.Fatalf("unexpected query: %+v", nearby.got)
	}
	var got []map[string]any
	decode(t, w, &got)
	if len(got) != 1 || got[0]["distance_km"] != 2.5 || got[0]["id"] != "t-01" || got[0]["latitude"] != 18.52 {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestNearby_Rejections(t *testing.T) {
	cases := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"missing lat", "/trucks/nearby?lng=73.8", nil, http.StatusUnprocessableEntity},
		{"bad radius", "/trucks/nearby?lat=1&lng=2&radius_km=-4", nil, http.StatusUnprocessableEntity},
		{"service validation", "/trucks/nearby?lat=1&lng=2&radius_km=900", matching.ErrBadRequest, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := buildTruckRouter(asUser("cust-1"), &stubTrucks{}, &stubNearby{err: tc.err})
			if w := doRequest(r, http.MethodGet, tc.path, nil); w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestGetTruck_NotFound(t *testing.T) {
	r := buildTruckRouter(asUser("cust-1"), &stubTrucks{err: fleet.ErrNotFound}, &stubNearby{})
	if w := doRequest(r, http.MethodGet, "/trucks/t-404", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListByOwner_CallerMustBeOwner(t *testing.T) {
	trucks := &stubTrucks{truck: sampleTruck()}
	if w := doRequest(buildTruckRouter(asUser("owner-2"), trucks, &stubNearby{}), http.MethodGet, "/trucks/owner/owner-1", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if w := doRequest(buildTruckRouter(asUser("owner-1"), trucks, &stubNearby{}), http.MethodGet, "/trucks/owner/owner-1", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestUpdateLocation(t *testing.T) {
	trucks := &stubTrucks{truck: sampleTruck()}
	r := buildTruckRouter(asUser("owner-1"), trucks, &stubNearby{})

	w := doRequest(r, http.MethodPut, "/trucks/t-01/location", map[string]any{"current_location": "Nashik", "latitude": 19.99, "longitude": 73.79})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if trucks.gotBy != "owner-1" || trucks.gotLoc.Position == nil || trucks.gotLoc.Position.Lat != 19.99 {
		t.Fatalf("unexpected update: %s %+v", trucks.gotBy, trucks.gotLoc)
	}

	w = doRequest(r, http.MethodPut, "/trucks/t-01/location", map[string]any{"current_location": "Nashik", "latitude": 19.99})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for half a coordinate, got %d", w.Code)
	}

	forbidden := buildTruckRouter(asUser("owner-2"), &stubTrucks{truck: sampleTruck(), err: fleet.ErrForbidden}, &stubNearby{})
	if w := doRequest(forbidden, http.MethodPut, "/trucks/t-01/location", map[string]any{"current_location": "Nashik"}); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestGetTruck_OwnerScoped(t *testing.T) {
	trucks := &stubTrucks{truck: sampleTruck(), err: fleet.ErrForbidden}
	if w := doRequest(buildTruckRouter(asUser("owner-2"), trucks, &stubNearby{}), http.MethodGet, "/trucks/t-01", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if trucks.gotBy != "owner-2" {
		t.Fatalf("get forwarded caller %q", trucks.gotBy)
	}
}

func TestRegisterTruck(t *testing.T) {
	trucks := &stubTrucks{truck: sampleTruck()}
	r := buildTruckRouter(asUser("owner-9"), trucks, &stubNearby{})

	w := doRequest(r, http.MethodPost, "/trucks", map[string]any{
		"vehicle_number": "MH14XY0001", "vehicle_type_id": "10-TON", "current_location": "Pune", "latitude": 18.5, "longitude": 73.8,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if trucks.gotBy != "owner-9" || trucks.gotRegister.Position == nil || trucks.gotRegister.VehicleTypeID != "10-TON" {
		t.Fatalf("unexpected register: %s %+v", trucks.gotBy, trucks.gotRegister)
	}
	var got map[string]any
	decode(t, w, &got)
	if got["owner_id"] != "owner-9" || got["vehicle_number"] != "MH14XY0001" {
		t.Fatalf("unexpected body: %v", got)
	}

	if w := doRequest(r, http.MethodPost, "/trucks", map[string]any{"vehicle_number": "X", "vehicle_type_id": "10-TON", "longitude": 73.8}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for half a coordinate, got %d", w.Code)
	}
	dup := buildTruckRouter(asUser("owner-9"), &stubTrucks{truck: sampleTruck(), err: fleet.ErrDuplicate}, &stubNearby{})
	if w := doRequest(dup, http.MethodPost, "/trucks", map[string]any{"vehicle_number": "X", "vehicle_type_id": "10-TON"}); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", w.Code)
	}
}

func TestUpdateTruck_PassesOptionalFields(t *testing.T) {
	trucks := &stubTrucks{truck: sampleTruck()}
	r := buildTruckRouter(asUser("owner-1"), trucks, &stubNearby{})
	if w := doRequest(r, http.MethodPut, "/trucks/t-01", map[string]any{"status": "maintenance"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	u := trucks.gotUpdate
	if u.Status == nil || *u.Status != fleet.StatusMaintenance || u.VehicleNumber != nil || u.VehicleTypeID != nil {
		t.Fatalf("unexpected update: %+v", u)
	}

	busy := buildTruckRouter(asUser("owner-1"), &stubTrucks{truck: sampleTruck(), err: fleet.ErrInUse}, &stubNearby{})
	if w := doRequest(busy, http.MethodPut, "/trucks/t-01", map[string]any{"status": "maintenance"}); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a truck in use, got %d", w.Code)
	}
}

func TestDeleteTruck(t *testing.T) {
	trucks := &stubTrucks{truck: sampleTruck()}
	w := doRequest(buildTruckRouter(asUser("owner-1"), trucks, &stubNearby{}), http.MethodDelete, "/trucks/t-01", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if trucks.deleted != "t-01" || trucks.gotBy != "owner-1" {
		t.Fatalf("unexpected delete: %q by %q", trucks.deleted, trucks.gotBy)
	}
}
