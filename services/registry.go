package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"parkwise/models"
	"parkwise/store"
)

// SpotRegistry 管理各停車場的車位與占用狀態。
// 查詢與狀態轉換都接收呼叫端的交易，讓預約流程能把佔位與建立預約放進同一個交易。
type SpotRegistry struct {
	store store.Store
}

func NewSpotRegistry(st store.Store) *SpotRegistry {
	return &SpotRegistry{store: st}
}

// ResizeOutcome 調整車位數的結果
type ResizeOutcome struct {
	LotID            int   `json:"lot_id"`
	PreviousCapacity int   `json:"previous_capacity"`
	Capacity         int   `json:"max_spots"`
	AddedSpotIDs     []int `json:"added_spot_ids"`
	RemovedSpotIDs   []int `json:"removed_spot_ids"`
}

// FindAvailable 依建立順序回傳第一個空車位，沒有空位時回傳 nil
func (r *SpotRegistry) FindAvailable(tx store.Tx, lotID int) (*models.Spot, error) {
	spots, err := tx.ListSpots(lotID)
	if err != nil {
		return nil, err
	}
	for i := range spots {
		if spots[i].IsAvailable() {
			return &spots[i], nil
		}
	}
	return nil, nil
}

// FindAvailableAcrossLots 依傳入的停車場順序 (停車場列表順序) 尋找第一個空車位
func (r *SpotRegistry) FindAvailableAcrossLots(tx store.Tx, lots []models.Lot) (*models.Lot, *models.Spot, error) {
	for i := range lots {
		spot, err := r.FindAvailable(tx, lots[i].LotID)
		if err != nil {
			return nil, nil, err
		}
		if spot != nil {
			return &lots[i], spot, nil
		}
	}
	return nil, nil, nil
}

// Claim 將空車位改為占用
func (r *SpotRegistry) Claim(tx store.Tx, spot *models.Spot) error {
	return r.transition(tx, spot, models.SpotAvailable, models.SpotOccupied)
}

// Release 將占用中的車位改回空車位
func (r *SpotRegistry) Release(tx store.Tx, spot *models.Spot) error {
	return r.transition(tx, spot, models.SpotOccupied, models.SpotAvailable)
}

func (r *SpotRegistry) transition(tx store.Tx, spot *models.Spot, from, to models.SpotStatus) error {
	err := tx.SetSpotStatus(spot.SpotID, from, to)
	switch {
	case err == nil:
		spot.Status = to
		return nil
	case errors.Is(err, store.ErrConflict):
		log.Printf("Spot %d state conflict: expected %s, want %s", spot.SpotID, from, to)
		return fmt.Errorf("%w: spot %d is already %s", ErrInvalidState, spot.SpotID, to)
	default:
		return notFound(err, "spot %d", spot.SpotID)
	}
}

// CheckCeiling 新車位數不得超過停車場的歷史上限
func CheckCeiling(newCapacity, ceiling int) error {
	if newCapacity < 0 {
		return fmt.Errorf("%w: capacity %d must not be negative", ErrInvalidInput, newCapacity)
	}
	if newCapacity > ceiling {
		return fmt.Errorf("%w: capacity %d exceeds ceiling %d", ErrAboveCeiling, newCapacity, ceiling)
	}
	return nil
}

// Resize 在單一交易內將停車場調整為 newCapacity 個車位
func (r *SpotRegistry) Resize(ctx context.Context, lotID, newCapacity, ceiling int) (*ResizeOutcome, error) {
	var outcome *ResizeOutcome
	err := r.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		outcome, err = r.resize(tx, lotID, newCapacity, ceiling)
		return err
	})
	if err != nil {
		log.Printf("Failed to resize lot %d to %d: %v", lotID, newCapacity, err)
		return nil, err
	}
	log.Printf("Resized lot %d from %d to %d spots (added %d, removed %d)",
		lotID, outcome.PreviousCapacity, outcome.Capacity, len(outcome.AddedSpotIDs), len(outcome.RemovedSpotIDs))
	return outcome, nil
}

func (r *SpotRegistry) resize(tx store.Tx, lotID, newCapacity, ceiling int) (*ResizeOutcome, error) {
	if err := CheckCeiling(newCapacity, ceiling); err != nil {
		return nil, err
	}

	lot, err := tx.GetLot(lotID, true)
	if err != nil {
		return nil, notFound(err, "lot %d", lotID)
	}
	spots, err := tx.ListSpots(lotID)
	if err != nil {
		return nil, err
	}

	outcome := &ResizeOutcome{
		LotID:            lotID,
		PreviousCapacity: lot.Capacity,
		Capacity:         newCapacity,
		AddedSpotIDs:     []int{},
		RemovedSpotIDs:   []int{},
	}

	switch {
	case newCapacity > len(spots):
		for i := 0; i < newCapacity-len(spots); i++ {
			spot := &models.Spot{LotID: lotID, Status: models.SpotAvailable}
			if err := tx.CreateSpot(spot); err != nil {
				return nil, err
			}
			outcome.AddedSpotIDs = append(outcome.AddedSpotIDs, spot.SpotID)
		}

	case newCapacity < len(spots):
		toRemove := len(spots) - newCapacity
		var available []models.Spot
		for _, spot := range spots {
			if spot.IsAvailable() {
				available = append(available, spot)
			}
		}
		if len(available) < toRemove {
			return nil, fmt.Errorf("%w: lot %d has %d available spots, %d must be removed",
				ErrTooManyOccupied, lotID, len(available), toRemove)
		}
		for _, spot := range available[:toRemove] {
			if err := tx.DeleteSpot(spot.SpotID); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return nil, fmt.Errorf("%w: spot %d became occupied during resize", ErrInvalidState, spot.SpotID)
				}
				return nil, err
			}
			outcome.RemovedSpotIDs = append(outcome.RemovedSpotIDs, spot.SpotID)
		}
	}

	lot.Capacity = newCapacity
	if err := tx.UpdateLot(lot); err != nil {
		return nil, err
	}
	return outcome, nil
}
