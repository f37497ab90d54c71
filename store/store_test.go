package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwise/models"
	"parkwise/store"
)

var errBoom = errors.New("boom")

// runStoreSuite 對任一 Store 實作執行相同的行為檢查
func runStoreSuite(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("LotsAndSpots", func(t *testing.T) { testLotsAndSpots(t, newStore(t)) })
	t.Run("SpotStatusCompareAndSwap", func(t *testing.T) { testSpotStatus(t, newStore(t)) })
	t.Run("Reservations", func(t *testing.T) { testReservations(t, newStore(t)) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("AtomicRollback", func(t *testing.T) { testAtomicRollback(t, newStore(t)) })
	t.Run("CancelledContext", func(t *testing.T) { testCancelledContext(t, newStore(t)) })
}

func seedLot(t *testing.T, st store.Store, name string, spots int) (*models.Lot, []models.Spot) {
	t.Helper()
	lot := &models.Lot{Name: name, Price: 10, Capacity: spots, Ceiling: spots, CreatedAt: time.Now().UTC()}
	var created []models.Spot
	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		if err := tx.CreateLot(lot); err != nil {
			return err
		}
		for i := 0; i < spots; i++ {
			spot := models.Spot{LotID: lot.LotID, Status: models.SpotAvailable}
			if err := tx.CreateSpot(&spot); err != nil {
				return err
			}
			created = append(created, spot)
		}
		return nil
	})
	require.NoError(t, err)
	return lot, created
}

func testLotsAndSpots(t *testing.T, st store.Store) {
	ctx := context.Background()
	first, firstSpots := seedLot(t, st, "North", 3)
	second, _ := seedLot(t, st, "South", 1)
	require.NotZero(t, first.LotID)
	assert.Greater(t, second.LotID, first.LotID)

	err := st.View(ctx, func(tx store.Tx) error {
		lots, err := tx.ListLots(false)
		require.NoError(t, err)
		require.Len(t, lots, 2)
		assert.Equal(t, "North", lots[0].Name)
		assert.Equal(t, "South", lots[1].Name)

		spots, err := tx.ListSpots(first.LotID)
		require.NoError(t, err)
		require.Len(t, spots, 3)
		for i, spot := range spots {
			assert.Equal(t, firstSpots[i].SpotID, spot.SpotID)
			assert.Equal(t, models.SpotAvailable, spot.Status)
		}

		_, err = tx.GetLot(9999, false)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetSpot(9999)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		lot, err := tx.GetLot(first.LotID, true)
		if err != nil {
			return err
		}
		lot.Price = 12.5
		lot.Capacity = 2
		lot.Pincode = "100"
		return tx.UpdateLot(lot)
	})
	require.NoError(t, err)

	err = st.View(ctx, func(tx store.Tx) error {
		lot, err := tx.GetLot(first.LotID, false)
		require.NoError(t, err)
		assert.Equal(t, 12.5, lot.Price)
		assert.Equal(t, 2, lot.Capacity)
		assert.Equal(t, 3, lot.Ceiling)
		assert.Equal(t, "100", lot.Pincode)
		return nil
	})
	require.NoError(t, err)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteLot(second.LotID)
	})
	require.NoError(t, err)
	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteLot(second.LotID)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSpotStatus(t *testing.T, st store.Store) {
	ctx := context.Background()
	_, spots := seedLot(t, st, "North", 2)
	id := spots[0].SpotID

	err := st.Atomic(ctx, func(tx store.Tx) error {
		return tx.SetSpotStatus(id, models.SpotAvailable, models.SpotOccupied)
	})
	require.NoError(t, err)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.SetSpotStatus(id, models.SpotAvailable, models.SpotOccupied)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.SetSpotStatus(9999, models.SpotAvailable, models.SpotOccupied)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteSpot(id)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteSpot(spots[1].SpotID)
	})
	require.NoError(t, err)

	err = st.View(ctx, func(tx store.Tx) error {
		spot, err := tx.GetSpot(id)
		require.NoError(t, err)
		assert.Equal(t, models.SpotOccupied, spot.Status)
		_, err = tx.GetSpot(spots[1].SpotID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func testReservations(t *testing.T, st store.Store) {
	ctx := context.Background()
	lot, spots := seedLot(t, st, "North", 3)
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	var ids []int
	err := st.Atomic(ctx, func(tx store.Tx) error {
		for i, renter := range []int{7, 7, 8} {
			r := &models.Reservation{
				SpotID:    spots[i].SpotID,
				LotID:     lot.LotID,
				RenterID:  renter,
				StartTime: start,
				UnitPrice: 10,
				TripMetadata: models.TripMetadata{
					RenterName:    "Ann",
					VehicleNumber: "ABC-123",
				},
			}
			if err := tx.CreateReservation(r); err != nil {
				return err
			}
			ids = append(ids, r.ReservationID)
		}
		return nil
	})
	require.NoError(t, err)

	end := start.Add(90 * time.Minute)
	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.CloseReservation(ids[0], end, 15)
	})
	require.NoError(t, err)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.CloseReservation(ids[0], end, 15)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.MarkSettled(ids[1], "open-receipt", end)
	})
	assert.ErrorIs(t, err, store.ErrConflict, "open reservations cannot be settled")

	err = st.View(ctx, func(tx store.Tx) error {
		r, err := tx.GetReservation(ids[0])
		require.NoError(t, err)
		require.NotNil(t, r.EndTime)
		assert.True(t, r.EndTime.Equal(end))
		assert.True(t, r.StartTime.Equal(start))
		assert.Equal(t, 15.0, r.Cost.Float64)
		assert.False(t, r.IsSettled())
		assert.Equal(t, "ABC-123", r.VehicleNumber)

		mine, err := tx.ListReservations(store.ReservationFilter{RenterID: 7})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, ids[1], mine[0].ReservationID, "newest first")

		open, err := tx.ListReservations(store.ReservationFilter{OpenOnly: true})
		require.NoError(t, err)
		assert.Len(t, open, 2)

		unsettled, err := tx.ListReservations(store.ReservationFilter{UnsettledOnly: true})
		require.NoError(t, err)
		require.Len(t, unsettled, 1)
		assert.Equal(t, ids[0], unsettled[0].ReservationID)

		total, err := tx.SumSettledCost()
		require.NoError(t, err)
		assert.Equal(t, 0.0, total)
		return nil
	})
	require.NoError(t, err)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.MarkSettled(ids[0], "receipt-1", end)
	})
	require.NoError(t, err)
	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.MarkSettled(ids[0], "receipt-2", end)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = st.View(ctx, func(tx store.Tx) error {
		total, err := tx.SumSettledCost()
		require.NoError(t, err)
		assert.Equal(t, 15.0, total)
		r, err := tx.GetReservation(ids[0])
		require.NoError(t, err)
		assert.True(t, r.IsSettled())
		assert.Equal(t, "receipt-1", r.ReceiptID.String)
		return nil
	})
	require.NoError(t, err)

	var deleted int64
	err = st.Atomic(ctx, func(tx store.Tx) error {
		var err error
		deleted, err = tx.DeleteClosedReservations(7)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	err = st.View(ctx, func(tx store.Tx) error {
		all, err := tx.ListReservations(store.ReservationFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2, "open reservations survive a purge")
		return nil
	})
	require.NoError(t, err)
}

func testAccounts(t *testing.T, st store.Store) {
	ctx := context.Background()
	err := st.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.CreateAccount(&models.Account{AccountID: 1, Name: "admin", Balance: 5, IsOperator: true, CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		return tx.CreateAccount(&models.Account{AccountID: 2, Name: "renter", Balance: 20, CreatedAt: time.Now().UTC()})
	})
	require.NoError(t, err)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.CreateAccount(&models.Account{AccountID: 2, Name: "again", CreatedAt: time.Now().UTC()})
	})
	assert.Error(t, err)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.Debit(2, 25)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.Debit(99, 1)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		return tx.Credit(99, 1)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = st.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.Debit(2, 15); err != nil {
			return err
		}
		return tx.Credit(1, 15)
	})
	require.NoError(t, err)

	err = st.View(ctx, func(tx store.Tx) error {
		renter, err := tx.GetAccount(2)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, renter.Balance, 0.001)

		operator, err := tx.GetOperatorAccount()
		require.NoError(t, err)
		assert.Equal(t, 1, operator.AccountID)
		assert.InDelta(t, 20.0, operator.Balance, 0.001)
		return nil
	})
	require.NoError(t, err)
}

func testAtomicRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	err := st.Atomic(ctx, func(tx store.Tx) error {
		lot := &models.Lot{Name: "Ghost", Price: 1, CreatedAt: time.Now().UTC()}
		if err := tx.CreateLot(lot); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	err = st.View(ctx, func(tx store.Tx) error {
		lots, err := tx.ListLots(false)
		require.NoError(t, err)
		assert.Empty(t, lots)
		return nil
	})
	require.NoError(t, err)
}

func testCancelledContext(t *testing.T, st store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := st.Atomic(ctx, func(tx store.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
