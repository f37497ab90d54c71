package services_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwise/models"
	"parkwise/services"
)

func TestCheckCeiling(t *testing.T) {
	assert.NoError(t, services.CheckCeiling(0, 5))
	assert.NoError(t, services.CheckCeiling(5, 5))
	assert.ErrorIs(t, services.CheckCeiling(6, 5), services.ErrAboveCeiling)
	assert.ErrorIs(t, services.CheckCeiling(6, 5), services.ErrCapacity)
	assert.ErrorIs(t, services.CheckCeiling(-1, 5), services.ErrInvalidInput)
}

func TestCreateLot(t *testing.T) {
	f := newFixture(t)

	lot := f.lot(t, "North", 12.345, 4)
	assert.Equal(t, 4, lot.Capacity)
	assert.Equal(t, 4, lot.Ceiling)
	assert.Equal(t, 12.35, lot.Price)

	spots := f.spots(t, lot.LotID)
	require.Len(t, spots, 4)
	for i, spot := range spots {
		assert.Equal(t, lot.LotID, spot.LotID)
		assert.Equal(t, models.SpotAvailable, spot.Status)
		if i > 0 {
			assert.Greater(t, spot.SpotID, spots[i-1].SpotID)
		}
	}

	empty := f.lot(t, "Empty", 0, 0)
	assert.Empty(t, f.spots(t, empty.LotID))

	_, err := f.lots.CreateLot(f.ctx, services.LotInput{Name: " ", Price: 10, Capacity: 1})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
	_, err = f.lots.CreateLot(f.ctx, services.LotInput{Name: "Bad", Price: -1, Capacity: 1})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
	_, err = f.lots.CreateLot(f.ctx, services.LotInput{Name: "Bad", Price: 1, Capacity: -1})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

// 容量 5、占用 3 時縮減為 2 必須失敗，縮減為 3 只移除空車位
func TestResize_ShrinkRespectsOccupiedSpots(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 5)
	f.account(t, 2, 100)

	var occupied []int
	for i := 0; i < 3; i++ {
		occupied = append(occupied, f.reserveIn(t, 2, lot.LotID).SpotID)
	}
	before := f.spots(t, lot.LotID)

	_, err := f.lots.Resize(f.ctx, lot.LotID, 2)
	assert.ErrorIs(t, err, services.ErrTooManyOccupied)
	assert.ErrorIs(t, err, services.ErrCapacity)
	assert.Equal(t, before, f.spots(t, lot.LotID), "failed resize leaves spots untouched")

	outcome, err := f.lots.Resize(f.ctx, lot.LotID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, outcome.PreviousCapacity)
	assert.Equal(t, 3, outcome.Capacity)
	assert.Len(t, outcome.RemovedSpotIDs, 2)
	assert.Empty(t, outcome.AddedSpotIDs)

	spots := f.spots(t, lot.LotID)
	require.Len(t, spots, 3)
	var remaining []int
	for _, spot := range spots {
		assert.Equal(t, models.SpotOccupied, spot.Status)
		remaining = append(remaining, spot.SpotID)
	}
	assert.Equal(t, occupied, remaining)

	summary, err := f.lots.GetLot(f.ctx, lot.LotID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Capacity)
	assert.Equal(t, 3, summary.Occupied)
	assert.Equal(t, 0, summary.Available)
}

func TestResize_RemovesFirstAvailableSpots(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 4)
	f.account(t, 2, 100)
	spots := f.spots(t, lot.LotID)

	_, err := f.engine.Reserve(f.ctx, services.ReserveRequest{RenterID: 2, SpotID: &spots[1].SpotID})
	require.NoError(t, err)

	outcome, err := f.lots.Resize(f.ctx, lot.LotID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{spots[0].SpotID, spots[2].SpotID}, outcome.RemovedSpotIDs)

	left := f.spots(t, lot.LotID)
	require.Len(t, left, 2)
	assert.Equal(t, spots[1].SpotID, left[0].SpotID)
	assert.Equal(t, spots[3].SpotID, left[1].SpotID)
}

func TestResize_GrowUpToCeiling(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 3)

	_, err := f.lots.Resize(f.ctx, lot.LotID, 1)
	require.NoError(t, err)

	outcome, err := f.lots.Resize(f.ctx, lot.LotID, 3)
	require.NoError(t, err)
	assert.Len(t, outcome.AddedSpotIDs, 2)
	assert.Len(t, f.spots(t, lot.LotID), 3)

	_, err = f.lots.Resize(f.ctx, lot.LotID, 4)
	assert.ErrorIs(t, err, services.ErrAboveCeiling)
	assert.Len(t, f.spots(t, lot.LotID), 3)

	_, err = f.lots.Resize(f.ctx, lot.LotID, -1)
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	outcome, err = f.lots.Resize(f.ctx, lot.LotID, 3)
	require.NoError(t, err)
	assert.Empty(t, outcome.AddedSpotIDs)
	assert.Empty(t, outcome.RemovedSpotIDs)

	_, err = f.lots.Resize(f.ctx, 9999, 1)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestRegistryResize_ExplicitCeiling(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 2)

	outcome, err := f.registry.Resize(f.ctx, lot.LotID, 6, 8)
	require.NoError(t, err)
	assert.Len(t, outcome.AddedSpotIDs, 4)

	_, err = f.registry.Resize(f.ctx, lot.LotID, 9, 8)
	assert.ErrorIs(t, err, services.ErrAboveCeiling)
}

func TestEditLot(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 3)

	name := "North Garage"
	price := 8.5
	capacity := 2
	updated, outcome, err := f.lots.EditLot(f.ctx, lot.LotID, services.LotUpdate{Name: &name, Price: &price, Capacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, "North Garage", updated.Name)
	assert.Equal(t, 8.5, updated.Price)
	assert.Equal(t, 2, updated.Capacity)
	assert.Equal(t, 3, updated.Ceiling)
	require.NotNil(t, outcome)
	assert.Len(t, outcome.RemovedSpotIDs, 1)

	// 未提供 Capacity 時不調整車位
	address := "1 Main St"
	updated, outcome, err = f.lots.EditLot(f.ctx, lot.LotID, services.LotUpdate{Address: &address})
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, "1 Main St", updated.Address)
	assert.Equal(t, "North Garage", updated.Name)
	assert.Equal(t, 2, updated.Capacity)

	tooMany := 4
	_, _, err = f.lots.EditLot(f.ctx, lot.LotID, services.LotUpdate{Name: &address, Capacity: &tooMany})
	assert.ErrorIs(t, err, services.ErrAboveCeiling)
	summary, err := f.lots.GetLot(f.ctx, lot.LotID)
	require.NoError(t, err)
	assert.Equal(t, "North Garage", summary.Name, "failed edit is rolled back")

	negative := -3.0
	_, _, err = f.lots.EditLot(f.ctx, lot.LotID, services.LotUpdate{Price: &negative})
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, _, err = f.lots.EditLot(f.ctx, 9999, services.LotUpdate{Name: &name})
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteLot(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 2)
	f.account(t, 2, 100)

	r := f.reserveIn(t, 2, lot.LotID)
	_, err := f.lots.DeleteLot(f.ctx, lot.LotID)
	assert.ErrorIs(t, err, services.ErrLotOccupied)
	assert.ErrorIs(t, err, services.ErrCapacity)
	assert.Len(t, f.spots(t, lot.LotID), 2)

	f.clock.Advance(time.Hour)
	_, _, err = f.engine.Release(f.ctx, r.ReservationID)
	require.NoError(t, err)

	outcome, err := f.lots.DeleteLot(f.ctx, lot.LotID)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.RemovedSpots)

	_, err = f.lots.GetLot(f.ctx, lot.LotID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.lots.ListSpots(f.ctx, lot.LotID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	// 歷史預約保留，仍可付款
	_, err = f.engine.Settle(f.ctx, r.ReservationID, 10)
	require.NoError(t, err)

	_, err = f.lots.DeleteLot(f.ctx, lot.LotID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestListLots(t *testing.T) {
	f := newFixture(t)
	a := f.lot(t, "A", 10, 2)
	b := f.lot(t, "B", 5, 1)
	f.account(t, 2, 100)
	f.reserveIn(t, 2, a.LotID)

	lots, err := f.lots.ListLots(f.ctx)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, a.LotID, lots[0].LotID)
	assert.Equal(t, 1, lots[0].Occupied)
	assert.Equal(t, 1, lots[0].Available)
	assert.Equal(t, b.LotID, lots[1].LotID)
	assert.Equal(t, 0, lots[1].Occupied)
	assert.Equal(t, 1, lots[1].Spots)
}

// 預約與縮減同時進行時，占用數永遠不超過容量
func TestResize_ConcurrentWithReservations(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 6)
	for i := 0; i < 6; i++ {
		f.account(t, 100+i, 10)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(renter int) {
			defer wg.Done()
			_, err := f.engine.Reserve(f.ctx, services.ReserveRequest{RenterID: renter, LotID: &lot.LotID})
			if err != nil && !errors.Is(err, services.ErrNoAvailability) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(100 + i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.lots.Resize(f.ctx, lot.LotID, 3)
		if err != nil && !errors.Is(err, services.ErrTooManyOccupied) {
			t.Errorf("unexpected resize error: %v", err)
		}
	}()
	wg.Wait()

	summary, err := f.lots.GetLot(f.ctx, lot.LotID)
	require.NoError(t, err)
	assert.Equal(t, summary.Capacity, summary.Spots)
	assert.LessOrEqual(t, summary.Occupied, summary.Capacity)

	report, err := f.auditor.Run(f.ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy(), "%+v", report)
}

func TestEarnings(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(t, "North", 10, 2)
	f.account(t, 2, 100)
	f.account(t, 3, 100)

	r1 := f.reserveIn(t, 2, lot.LotID)
	r2 := f.reserveIn(t, 3, lot.LotID)
	f.clock.Advance(90 * time.Minute)
	_, c1, err := f.engine.Release(f.ctx, r1.ReservationID)
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	_, c2, err := f.engine.Release(f.ctx, r2.ReservationID)
	require.NoError(t, err)
	require.Equal(t, 15.0, c1)
	require.Equal(t, 20.0, c2)

	_, err = f.engine.Settle(f.ctx, r1.ReservationID, c1)
	require.NoError(t, err)
	earnings, err := f.lots.Earnings(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 15.0, earnings, "unsettled cost is not earned")

	_, err = f.engine.Settle(f.ctx, r2.ReservationID, c2)
	require.NoError(t, err)
	earnings, err = f.lots.Earnings(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 35.0, earnings)
}
