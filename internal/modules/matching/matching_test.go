// README: Selector and nearby search unit tests with in-memory fleet fakes.
package matching

import (
	"context"
	"errors"
	"sort"
	"testing"

	"haulbook/internal/modules/fleet"
	"haulbook/internal/types"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memFleet struct {
	trucks []*fleet.Truck
	err    error
	calls  int
}

func (m *memFleet) FindEligible(_ context.Context, vt types.ID) ([]*fleet.Truck, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*fleet.Truck
	for _, t := range m.sorted() {
		if t.VehicleTypeID == vt && t.Selectable() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memFleet) ListAvailableWithCoordinates(_ context.Context, vt types.ID) ([]*fleet.Truck, error) {
	var out []*fleet.Truck
	for _, t := range m.sorted() {
		if t.Position != nil && t.Selectable() && (vt == "" || t.VehicleTypeID == vt) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memFleet) ListByIDs(_ context.Context, ids []types.ID) ([]*fleet.Truck, error) {
	want := make(map[types.ID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*fleet.Truck
	for _, t := range m.sorted() {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memFleet) sorted() []*fleet.Truck {
	cp := append([]*fleet.Truck(nil), m.trucks...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
	return cp
}

type stubIndex struct {
	ids []types.ID
	err error
}

func (s *stubIndex) Within(_ context.Context, _ types.Point, _ float64) ([]types.ID, error) {
	return s.ids, s.err
}

func truck(id, vt, loc string) *fleet.Truck {
	return &fleet.Truck{
		ID:              types.ID(id),
		VehicleTypeID:   types.ID(vt),
		IsAvailable:     true,
		Status:          fleet.StatusAvailable,
		CurrentLocation: loc,
	}
}

func at(t *fleet.Truck, lat, lng float64) *fleet.Truck {
	t.Position = &types.Point{Lat: lat, Lng: lng}
	return t
}

// ---------------------------------------------------------------------------
// SelectTruck
// ---------------------------------------------------------------------------

func TestSelectTruck_PrefersProximitySubset(t *testing.T) {
	f := &memFleet{trucks: []*fleet.Truck{
		truck("t1", "10-TON", "Ranchi"),
		truck("t2", "10-TON", "Dumka"),
		truck("t3", "10-TON", "dumka"),
	}}
	got, err := SelectTruck(context.Background(), f, "10-TON", "Dumka Sand Ghat")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got == nil || got.ID != "t2" {
		t.Fatalf("expected t2 (first text match by id), got %v", got)
	}
}

func TestSelectTruck_FallsBackToEligibilitySet(t *testing.T) {
	f := &memFleet{trucks: []*fleet.Truck{
		truck("t9", "10-TON", "Patna"),
		truck("t4", "10-TON", "Gaya"),
	}}
	got, err := SelectTruck(context.Background(), f, "10-TON", "Dumka")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got == nil || got.ID != "t4" {
		t.Fatalf("expected t4 (lowest id), got %v", got)
	}
}

func TestSelectTruck_NoEligibleIsNotAnError(t *testing.T) {
	booked := truck("t1", "10-TON", "Dumka")
	booked.IsAvailable = false
	booked.Status = fleet.StatusBooked
	f := &memFleet{trucks: []*fleet.Truck{booked, truck("t2", "30-TON", "Dumka")}}

	got, err := SelectTruck(context.Background(), f, "10-TON", "Dumka")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no truck, got %s", got.ID)
	}
}

func TestSelectTruck_PropagatesRegistryError(t *testing.T) {
	f := &memFleet{err: errors.New("db down")}
	if _, err := SelectTruck(context.Background(), f, "10-TON", "Dumka"); err == nil {
		t.Fatal("expected registry error")
	}
}

func TestSelectTruck_DoesNotMutate(t *testing.T) {
	tr := truck("t1", "10-TON", "Dumka")
	f := &memFleet{trucks: []*fleet.Truck{tr}}
	for i := 0; i < 3; i++ {
		got, _ := SelectTruck(context.Background(), f, "10-TON", "Dumka")
		if got == nil || got.ID != "t1" {
			t.Fatalf("pass %d: expected t1, got %v", i, got)
		}
	}
	if !tr.IsAvailable || tr.Status != fleet.StatusAvailable {
		t.Fatalf("selection mutated truck: %+v", tr)
	}
}

func TestPickTruck_SkipsUnselectable(t *testing.T) {
	maint := truck("t1", "10-TON", "Dumka")
	maint.Status = fleet.StatusMaintenance
	got := PickTruck([]*fleet.Truck{maint, truck("t2", "10-TON", "Gaya")}, "Dumka")
	if got == nil || got.ID != "t2" {
		t.Fatalf("expected t2, got %v", got)
	}
}

func TestNearText(t *testing.T) {
	cases := []struct {
		truck, source string
		want          bool
	}{
		{"Dumka", "dumka", true},
		{"Dumka", "Near Dumka Railway Station", true},
		{"Dumka Railway Station", "dumka", true},
		{"  Gaya ", "GAYA", true},
		{"Patna", "Dumka", false},
		{"", "Dumka", false},
		{"Dumka", "", false},
	}
	for _, tc := range cases {
		if got := NearText(tc.truck, tc.source); got != tc.want {
			t.Errorf("NearText(%q, %q) = %v, want %v", tc.truck, tc.source, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Nearby
// ---------------------------------------------------------------------------

var dumka = types.Point{Lat: 24.2676, Lng: 87.2497}

func nearbyFleet() *memFleet {
	return &memFleet{trucks: []*fleet.Truck{
		at(truck("far", "10-TON", "Nawada"), 24.8867, 85.5435), // ~185 km
		at(truck("mid", "10-TON", "Jama"), 24.40, 87.10),       // ~21 km
		at(truck("near", "30-TON", "Dumka"), 24.27, 87.25),     // <1 km
		truck("nocoords", "10-TON", "Dumka"),
	}}
}

func TestNearby_RanksByDistanceWithinRadius(t *testing.T) {
	svc := NewService(nearbyFleet(), nil, Config{})
	got, err := svc.Nearby(context.Background(), NearbyQuery{Point: dumka})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 trucks within default radius, got %d", len(got))
	}
	if got[0].Truck.ID != "near" || got[1].Truck.ID != "mid" {
		t.Fatalf("unexpected order: %s, %s", got[0].Truck.ID, got[1].Truck.ID)
	}
	if got[0].DistanceKm > got[1].DistanceKm {
		t.Fatalf("distances not ascending: %f > %f", got[0].DistanceKm, got[1].DistanceKm)
	}
}

func TestNearby_WiderRadiusAndVehicleFilter(t *testing.T) {
	svc := NewService(nearbyFleet(), nil, Config{})
	got, err := svc.Nearby(context.Background(), NearbyQuery{Point: dumka, RadiusKm: 300, VehicleTypeID: "10-TON"})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0].Truck.ID != "mid" || got[1].Truck.ID != "far" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestNearby_Validation(t *testing.T) {
	svc := NewService(nearbyFleet(), nil, Config{})
	ctx := context.Background()
	cases := []NearbyQuery{
		{Point: types.Point{Lat: 91, Lng: 0}},
		{Point: types.Point{Lat: 0, Lng: 181}},
		{Point: dumka, RadiusKm: -1},
		{Point: dumka, RadiusKm: 501},
	}
	for _, q := range cases {
		if _, err := svc.Nearby(ctx, q); !errors.Is(err, ErrBadRequest) {
			t.Errorf("Nearby(%+v): expected ErrBadRequest, got %v", q, err)
		}
	}
}

func TestNearby_UsesIndexCandidates(t *testing.T) {
	idx := &stubIndex{ids: []types.ID{"mid", "nocoords"}}
	svc := NewService(nearbyFleet(), idx, Config{NearbyRadiusKm: 50})
	got, err := svc.Nearby(context.Background(), NearbyQuery{Point: dumka})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 1 || got[0].Truck.ID != "mid" {
		t.Fatalf("expected only indexed truck with coordinates, got %+v", got)
	}
}

func TestNearby_IndexError(t *testing.T) {
	svc := NewService(nearbyFleet(), &stubIndex{err: errors.New("redis down")}, Config{})
	if _, err := svc.Nearby(context.Background(), NearbyQuery{Point: dumka}); err == nil {
		t.Fatal("expected index error to propagate")
	}
}
