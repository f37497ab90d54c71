package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"parkwise/models"
	"parkwise/store"
)

// LotService 停車場的建立、修改、刪除與查詢
type LotService struct {
	store    store.Store
	registry *SpotRegistry
	clock    Clock
}

func NewLotService(st store.Store, registry *SpotRegistry, clock Clock) *LotService {
	return &LotService{store: st, registry: registry, clock: clock}
}

type LotInput struct {
	Name     string
	Address  string
	Pincode  string
	Price    float64
	Capacity int
}

// LotUpdate 只套用非 nil 的欄位
type LotUpdate struct {
	Name     *string
	Address  *string
	Pincode  *string
	Price    *float64
	Capacity *int
}

// LotSummary 停車場與目前的占用統計
type LotSummary struct {
	models.Lot
	Spots     int
	Occupied  int
	Available int
}

type DeleteOutcome struct {
	LotID        int `json:"lot_id"`
	RemovedSpots int `json:"removed_spots"`
}

func validPrice(price float64) error {
	if err := validAmount(price); err != nil {
		return fmt.Errorf("%w: price %v", ErrInvalidInput, price)
	}
	return nil
}

// CreateLot 建立停車場，車位透過擴充流程建立，上限為初始車位數
func (s *LotService) CreateLot(ctx context.Context, in LotInput) (*models.Lot, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: lot name is required", ErrInvalidInput)
	}
	if err := validPrice(in.Price); err != nil {
		return nil, err
	}
	if in.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity %d must not be negative", ErrInvalidInput, in.Capacity)
	}

	lot := &models.Lot{
		Name:      in.Name,
		Address:   in.Address,
		Pincode:   in.Pincode,
		Price:     RoundMoney(in.Price),
		Ceiling:   in.Capacity,
		CreatedAt: s.clock.Now(),
	}
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.CreateLot(lot); err != nil {
			return err
		}
		outcome, err := s.registry.resize(tx, lot.LotID, in.Capacity, lot.Ceiling)
		if err != nil {
			return err
		}
		lot.Capacity = outcome.Capacity
		return nil
	})
	if err != nil {
		log.Printf("Failed to create lot %q: %v", in.Name, err)
		return nil, err
	}
	log.Printf("Lot %d created: name=%s, max_spots=%d, price=%.2f", lot.LotID, lot.Name, lot.Capacity, lot.Price)
	return lot, nil
}

// EditLot 更新停車場資料，提供 Capacity 時一併調整車位數 (不得超過上限)
func (s *LotService) EditLot(ctx context.Context, lotID int, upd LotUpdate) (*models.Lot, *ResizeOutcome, error) {
	if upd.Price != nil {
		if err := validPrice(*upd.Price); err != nil {
			return nil, nil, err
		}
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, nil, fmt.Errorf("%w: lot name must not be empty", ErrInvalidInput)
	}

	var lot *models.Lot
	var outcome *ResizeOutcome
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		current, err := tx.GetLot(lotID, true)
		if err != nil {
			return notFound(err, "lot %d", lotID)
		}
		if upd.Capacity != nil {
			outcome, err = s.registry.resize(tx, lotID, *upd.Capacity, current.Ceiling)
			if err != nil {
				return err
			}
			current.Capacity = outcome.Capacity
		}

		if upd.Name != nil {
			current.Name = *upd.Name
		}
		if upd.Address != nil {
			current.Address = *upd.Address
		}
		if upd.Pincode != nil {
			current.Pincode = *upd.Pincode
		}
		if upd.Price != nil {
			current.Price = RoundMoney(*upd.Price)
		}
		if err := tx.UpdateLot(current); err != nil {
			return err
		}
		lot = current
		return nil
	})
	if err != nil {
		log.Printf("Failed to edit lot %d: %v", lotID, err)
		return nil, nil, err
	}
	log.Printf("Lot %d updated: max_spots=%d, price=%.2f", lot.LotID, lot.Capacity, lot.Price)
	return lot, outcome, nil
}

// Resize 依停車場儲存的上限調整車位數
func (s *LotService) Resize(ctx context.Context, lotID, newCapacity int) (*ResizeOutcome, error) {
	var outcome *ResizeOutcome
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		lot, err := tx.GetLot(lotID, true)
		if err != nil {
			return notFound(err, "lot %d", lotID)
		}
		outcome, err = s.registry.resize(tx, lotID, newCapacity, lot.Ceiling)
		return err
	})
	if err != nil {
		log.Printf("Failed to resize lot %d to %d: %v", lotID, newCapacity, err)
		return nil, err
	}
	log.Printf("Lot %d resized from %d to %d", lotID, outcome.PreviousCapacity, outcome.Capacity)
	return outcome, nil
}

// DeleteLot 確認沒有占用中的車位後，先刪除所有車位再刪除停車場
func (s *LotService) DeleteLot(ctx context.Context, lotID int) (*DeleteOutcome, error) {
	outcome := &DeleteOutcome{LotID: lotID}
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.GetLot(lotID, true); err != nil {
			return notFound(err, "lot %d", lotID)
		}
		spots, err := tx.ListSpots(lotID)
		if err != nil {
			return err
		}

		occupied := 0
		for _, spot := range spots {
			if !spot.IsAvailable() {
				occupied++
			}
		}
		if occupied > 0 {
			return fmt.Errorf("%w: lot %d has %d occupied spots", ErrLotOccupied, lotID, occupied)
		}

		for _, spot := range spots {
			if err := tx.DeleteSpot(spot.SpotID); err != nil {
				return err
			}
		}
		outcome.RemovedSpots = len(spots)
		return tx.DeleteLot(lotID)
	})
	if err != nil {
		log.Printf("Failed to delete lot %d: %v", lotID, err)
		return nil, err
	}
	log.Printf("Lot %d deleted with %d spots", lotID, outcome.RemovedSpots)
	return outcome, nil
}

func summarize(tx store.Tx, lot models.Lot) (LotSummary, error) {
	spots, err := tx.ListSpots(lot.LotID)
	if err != nil {
		return LotSummary{}, err
	}
	summary := LotSummary{Lot: lot, Spots: len(spots)}
	for _, spot := range spots {
		if spot.IsAvailable() {
			summary.Available++
		} else {
			summary.Occupied++
		}
	}
	return summary, nil
}

// ListLots 依停車場列表順序 (lot_id 遞增) 回傳所有停車場與占用統計
func (s *LotService) ListLots(ctx context.Context) ([]LotSummary, error) {
	var summaries []LotSummary
	err := s.store.View(ctx, func(tx store.Tx) error {
		lots, err := tx.ListLots(false)
		if err != nil {
			return err
		}
		summaries = make([]LotSummary, 0, len(lots))
		for _, lot := range lots {
			summary, err := summarize(tx, lot)
			if err != nil {
				return err
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		log.Printf("Failed to list lots: %v", err)
		return nil, err
	}
	return summaries, nil
}

func (s *LotService) GetLot(ctx context.Context, lotID int) (*LotSummary, error) {
	var summary LotSummary
	err := s.store.View(ctx, func(tx store.Tx) error {
		lot, err := tx.GetLot(lotID, false)
		if err != nil {
			return notFound(err, "lot %d", lotID)
		}
		summary, err = summarize(tx, *lot)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListSpots 依建立順序回傳停車場的車位與狀態
func (s *LotService) ListSpots(ctx context.Context, lotID int) ([]models.Spot, error) {
	var spots []models.Spot
	err := s.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetLot(lotID, false); err != nil {
			return notFound(err, "lot %d", lotID)
		}
		var err error
		spots, err = tx.ListSpots(lotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return spots, nil
}

// Earnings 已付款預約的費用總和
func (s *LotService) Earnings(ctx context.Context) (float64, error) {
	var total float64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		total, err = tx.SumSettledCost()
		return err
	})
	if err != nil {
		log.Printf("Failed to calculate earnings: %v", err)
		return 0, err
	}
	return total, nil
}
