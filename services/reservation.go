package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gopkg.in/guregu/null.v4"

	"parkwise/events"
	"parkwise/models"
	"parkwise/store"
)

// 同一交易內找到空位後被搶走時的重試次數
const maxClaimAttempts = 3

// FieldSealer 加解密預約中的聯絡資訊
type FieldSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// ReserveRequest 預約請求。LotID 與 SpotID 皆為選填：
// 指定 SpotID 時直接佔用該車位；只指定 LotID 時在該停車場找空位；都未指定時依停車場列表順序尋找。
type ReserveRequest struct {
	RenterID int
	LotID    *int
	SpotID   *int
	Metadata models.TripMetadata
}

// RenterSummary 會員的預約統計
type RenterSummary struct {
	RenterID    int     `json:"renter_id"`
	Open        int     `json:"open_reservations"`
	Closed      int     `json:"closed_reservations"`
	Unsettled   int     `json:"unsettled_reservations"`
	TotalCost   float64 `json:"total_cost"`
	Settled     float64 `json:"settled"`
	Outstanding float64 `json:"outstanding"`
}

// ReservationEngine 負責預約、離場計費與付款
type ReservationEngine struct {
	store     store.Store
	registry  *SpotRegistry
	ledger    *Ledger
	clock     Clock
	publisher events.Publisher
	sealer    FieldSealer
}

type EngineOption func(*ReservationEngine)

func WithPublisher(p events.Publisher) EngineOption {
	return func(e *ReservationEngine) {
		e.publisher = p
	}
}

func WithFieldSealer(s FieldSealer) EngineOption {
	return func(e *ReservationEngine) {
		e.sealer = s
	}
}

func NewReservationEngine(st store.Store, registry *SpotRegistry, ledger *Ledger, clock Clock, opts ...EngineOption) *ReservationEngine {
	e := &ReservationEngine{
		store:     st,
		registry:  registry,
		ledger:    ledger,
		clock:     clock,
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeCost 依時長 (小時，含小數) 乘以單價計算費用，只在最後四捨五入到小數第二位
func ComputeCost(start, end time.Time, unitPrice float64) (float64, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%w: end %s is before start %s",
			ErrInvalidDuration, end.Format(time.RFC3339Nano), start.Format(time.RFC3339Nano))
	}
	hours := end.Sub(start).Seconds() / 3600
	return RoundMoney(hours * unitPrice), nil
}

// Reserve 佔用車位並建立預約，兩者在同一個交易內完成
func (e *ReservationEngine) Reserve(ctx context.Context, req ReserveRequest) (*models.Reservation, error) {
	if req.RenterID <= 0 {
		return nil, fmt.Errorf("%w: renter id %d", ErrInvalidInput, req.RenterID)
	}

	stored := req.Metadata
	if e.sealer != nil && stored.Contact != "" {
		sealed, err := e.sealer.Seal(stored.Contact)
		if err != nil {
			return nil, fmt.Errorf("failed to seal contact: %w", err)
		}
		stored.Contact = sealed
	}

	var reservation *models.Reservation
	err := e.store.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccount(req.RenterID); err != nil {
			return notFound(err, "renter account %d", req.RenterID)
		}

		lot, spot, err := e.pick(tx, req)
		if err != nil {
			return err
		}

		r := &models.Reservation{
			SpotID:       spot.SpotID,
			LotID:        lot.LotID,
			RenterID:     req.RenterID,
			StartTime:    e.clock.Now(),
			UnitPrice:    lot.Price,
			TripMetadata: stored,
		}
		if err := tx.CreateReservation(r); err != nil {
			return fmt.Errorf("failed to persist reservation on spot %d: %w", spot.SpotID, err)
		}
		reservation = r
		return nil
	})
	if err != nil {
		log.Printf("Failed to reserve for renter %d: %v", req.RenterID, err)
		return nil, err
	}

	reservation.Contact = req.Metadata.Contact
	log.Printf("Reservation %d created: renter=%d, lot=%d, spot=%d, unit_price=%.2f",
		reservation.ReservationID, reservation.RenterID, reservation.LotID, reservation.SpotID, reservation.UnitPrice)

	event := e.event(events.ReservationCreated, reservation)
	e.publish(ctx, event)
	return reservation, nil
}

func (e *ReservationEngine) pick(tx store.Tx, req ReserveRequest) (*models.Lot, *models.Spot, error) {
	switch {
	case req.SpotID != nil:
		spot, err := tx.GetSpot(*req.SpotID)
		if err != nil {
			return nil, nil, notFound(err, "spot %d", *req.SpotID)
		}
		if req.LotID != nil && spot.LotID != *req.LotID {
			return nil, nil, fmt.Errorf("%w: spot %d in lot %d", ErrNotFound, spot.SpotID, *req.LotID)
		}
		lot, err := tx.GetLot(spot.LotID, true)
		if err != nil {
			return nil, nil, notFound(err, "lot %d", spot.LotID)
		}
		if err := e.registry.Claim(tx, spot); err != nil {
			return nil, nil, err
		}
		return lot, spot, nil

	case req.LotID != nil:
		lot, err := tx.GetLot(*req.LotID, true)
		if err != nil {
			return nil, nil, notFound(err, "lot %d", *req.LotID)
		}
		return e.claimFirst(tx, []models.Lot{*lot})

	default:
		lots, err := tx.ListLots(true)
		if err != nil {
			return nil, nil, err
		}
		return e.claimFirst(tx, lots)
	}
}

// claimFirst 找到第一個空車位並佔用。佔用的條件式更新失敗代表被其他請求搶先，重新尋找
func (e *ReservationEngine) claimFirst(tx store.Tx, lots []models.Lot) (*models.Lot, *models.Spot, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		lot, spot, err := e.registry.FindAvailableAcrossLots(tx, lots)
		if err != nil {
			return nil, nil, err
		}
		if spot == nil {
			break
		}
		err = e.registry.Claim(tx, spot)
		if err == nil {
			return lot, spot, nil
		}
		if !errors.Is(err, ErrInvalidState) {
			return nil, nil, err
		}
	}
	if len(lots) == 1 {
		return nil, nil, fmt.Errorf("%w: lot %d is full", ErrNoAvailability, lots[0].LotID)
	}
	return nil, nil, fmt.Errorf("%w: all lots are full", ErrNoAvailability)
}

// Release 結束預約、計算費用並釋放車位。不會扣款，付款由 Settle 處理
func (e *ReservationEngine) Release(ctx context.Context, reservationID int) (*models.Reservation, float64, error) {
	var reservation *models.Reservation
	var cost float64
	err := e.store.Atomic(ctx, func(tx store.Tx) error {
		r, err := tx.GetReservation(reservationID)
		if err != nil {
			return notFound(err, "reservation %d", reservationID)
		}
		if !r.IsOpen() {
			return fmt.Errorf("%w: reservation %d", ErrAlreadyClosed, reservationID)
		}

		end := e.clock.Now()
		cost, err = ComputeCost(r.StartTime, end, r.UnitPrice)
		if err != nil {
			log.Printf("Data corruption on reservation %d: %v", reservationID, err)
			return err
		}

		spot, err := tx.GetSpot(r.SpotID)
		if err != nil {
			return notFound(err, "spot %d of reservation %d", r.SpotID, reservationID)
		}
		if err := e.registry.Release(tx, spot); err != nil {
			return err
		}

		if err := tx.CloseReservation(reservationID, end, cost); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: reservation %d", ErrAlreadyClosed, reservationID)
			}
			return err
		}
		r.EndTime = &end
		r.Cost = null.FloatFrom(cost)
		reservation = r
		return nil
	})
	if err != nil {
		log.Printf("Failed to release reservation %d: %v", reservationID, err)
		return nil, 0, err
	}

	e.reveal(reservation)
	log.Printf("Reservation %d released: spot=%d, duration=%.2f hours, cost=%.2f",
		reservationID, reservation.SpotID, reservation.EndTime.Sub(reservation.StartTime).Hours(), cost)

	event := e.event(events.ReservationReleased, reservation)
	event.Amount = cost
	e.publish(ctx, event)
	return reservation, cost, nil
}

// Settle 將已結束預約的費用從會員轉給營運帳戶。
// 餘額不足時預約維持「已結束未付款」，會員儲值後可再次呼叫。
func (e *ReservationEngine) Settle(ctx context.Context, reservationID int, cost float64) (*models.Receipt, error) {
	var receipt *models.Receipt
	var reservation *models.Reservation
	err := e.store.Atomic(ctx, func(tx store.Tx) error {
		r, err := tx.GetReservation(reservationID)
		if err != nil {
			return notFound(err, "reservation %d", reservationID)
		}
		reservation = r
		if r.IsOpen() {
			return fmt.Errorf("%w: reservation %d is still open", ErrInvalidState, reservationID)
		}
		if r.IsSettled() {
			return fmt.Errorf("%w: reservation %d", ErrAlreadySettled, reservationID)
		}
		if !r.Cost.Valid || RoundMoney(cost) != RoundMoney(r.Cost.Float64) {
			return fmt.Errorf("%w: confirmed cost %.2f does not match %.2f", ErrInvalidAmount, cost, r.Cost.Float64)
		}

		operator, err := tx.GetOperatorAccount()
		if err != nil {
			return notFound(err, "operator account")
		}

		receipt, err = e.ledger.transfer(tx, r.RenterID, operator.AccountID, r.Cost.Float64, r.ReservationID)
		if err != nil {
			return err
		}

		if err := tx.MarkSettled(reservationID, receipt.ReceiptID, receipt.CreatedAt); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: reservation %d", ErrAlreadySettled, reservationID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		log.Printf("Failed to settle reservation %d: %v", reservationID, err)
		if errors.Is(err, ErrInsufficientFunds) && reservation != nil {
			event := e.event(events.SettlementFailed, reservation)
			event.Amount = reservation.Cost.Float64
			event.Reason = err.Error()
			e.publish(ctx, event)
		}
		return nil, err
	}

	log.Printf("Reservation %d settled: %.2f from account %d to %d, receipt=%s",
		reservationID, receipt.Amount, receipt.FromAccountID, receipt.ToAccountID, receipt.ReceiptID)

	event := e.event(events.ReservationSettled, reservation)
	event.Amount = receipt.Amount
	event.ReceiptID = receipt.ReceiptID
	e.publish(ctx, event)
	return receipt, nil
}

func (e *ReservationEngine) Get(ctx context.Context, reservationID int) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		reservation, err = tx.GetReservation(reservationID)
		return notFound(err, "reservation %d", reservationID)
	})
	if err != nil {
		return nil, err
	}
	e.reveal(reservation)
	return reservation, nil
}

func (e *ReservationEngine) list(ctx context.Context, filter store.ReservationFilter) ([]models.Reservation, error) {
	var list []models.Reservation
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.ListReservations(filter)
		return err
	})
	if err != nil {
		log.Printf("Failed to query reservations %+v: %v", filter, err)
		return nil, err
	}
	for i := range list {
		e.reveal(&list[i])
	}
	return list, nil
}

// ListForRenter 回傳會員所有預約 (進行中與已結束)，新的在前
func (e *ReservationEngine) ListForRenter(ctx context.Context, renterID int) ([]models.Reservation, error) {
	return e.list(ctx, store.ReservationFilter{RenterID: renterID})
}

func (e *ReservationEngine) ActiveForRenter(ctx context.Context, renterID int) ([]models.Reservation, error) {
	return e.list(ctx, store.ReservationFilter{RenterID: renterID, OpenOnly: true})
}

// UnsettledForRenter 回傳已結束但尚未付款的預約
func (e *ReservationEngine) UnsettledForRenter(ctx context.Context, renterID int) ([]models.Reservation, error) {
	return e.list(ctx, store.ReservationFilter{RenterID: renterID, UnsettledOnly: true})
}

func (e *ReservationEngine) RenterSummary(ctx context.Context, renterID int) (*RenterSummary, error) {
	list, err := e.ListForRenter(ctx, renterID)
	if err != nil {
		return nil, err
	}

	summary := &RenterSummary{RenterID: renterID}
	for i := range list {
		r := &list[i]
		if r.IsOpen() {
			summary.Open++
			continue
		}
		summary.Closed++
		summary.TotalCost += r.Cost.Float64
		if r.IsSettled() {
			summary.Settled += r.Cost.Float64
		} else {
			summary.Unsettled++
			summary.Outstanding += r.Cost.Float64
		}
	}
	summary.TotalCost = RoundMoney(summary.TotalCost)
	summary.Settled = RoundMoney(summary.Settled)
	summary.Outstanding = RoundMoney(summary.Outstanding)
	return summary, nil
}

// PurgeHistory 刪除會員已結束的預約紀錄
func (e *ReservationEngine) PurgeHistory(ctx context.Context, renterID int) (int64, error) {
	if renterID <= 0 {
		return 0, fmt.Errorf("%w: renter id %d", ErrInvalidInput, renterID)
	}
	return e.purge(ctx, renterID)
}

// PurgeAllHistory 刪除所有會員已結束的預約紀錄，進行中的預約保留
func (e *ReservationEngine) PurgeAllHistory(ctx context.Context) (int64, error) {
	return e.purge(ctx, 0)
}

func (e *ReservationEngine) purge(ctx context.Context, renterID int) (int64, error) {
	var deleted int64
	err := e.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		deleted, err = tx.DeleteClosedReservations(renterID)
		return err
	})
	if err != nil {
		log.Printf("Failed to purge reservation history (renter=%d): %v", renterID, err)
		return 0, err
	}
	log.Printf("Purged %d closed reservations (renter=%d)", deleted, renterID)
	return deleted, nil
}

// reveal 解密聯絡資訊，無法解密時保留原值 (加密前寫入的舊資料)
func (e *ReservationEngine) reveal(r *models.Reservation) {
	if e.sealer == nil || r.Contact == "" {
		return
	}
	plain, err := e.sealer.Open(r.Contact)
	if err != nil {
		log.Printf("Failed to open contact of reservation %d: %v", r.ReservationID, err)
		return
	}
	r.Contact = plain
}

func (e *ReservationEngine) event(eventType string, r *models.Reservation) events.Event {
	event := events.New(eventType, e.clock.Now())
	event.ReservationID = r.ReservationID
	event.RenterID = r.RenterID
	event.LotID = r.LotID
	event.SpotID = r.SpotID
	return event
}

func (e *ReservationEngine) publish(ctx context.Context, event events.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s for reservation %d: %v", event.Type, event.ReservationID, err)
	}
}
