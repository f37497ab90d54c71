// Package store 定義停車場資料的持久化介面。
//
// 所有寫入都必須在 Store.Atomic 的交易內完成，服務層把多個步驟
// (佔用車位、建立預約、扣款入帳) 組合在同一個交易裡，任何一步失敗整筆回滾。
// 目前有兩種實作：GormStore (MySQL / PostgreSQL) 與 BoltStore (嵌入式 BoltDB)。
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"parkwise/models"
)

var (
	// ErrNotFound 查無資料
	ErrNotFound = errors.New("record not found")
	// ErrConflict 條件式更新未命中 (狀態已被其他請求改變或餘額不足)
	ErrConflict = errors.New("conditional update did not apply")
	// ErrDuplicate 主鍵或唯一鍵重複
	ErrDuplicate = errors.New("duplicate record")
)

// ReservationFilter 預約查詢條件，零值欄位不套用
type ReservationFilter struct {
	RenterID      int
	SpotID        int
	OpenOnly      bool
	ClosedOnly    bool
	UnsettledOnly bool // 已離場但尚未付款
}

// Tx 單一交易內可用的操作
type Tx interface {
	CreateLot(lot *models.Lot) error
	// GetLot 取得停車場，forUpdate 為 true 時鎖定該列直到交易結束
	GetLot(id int, forUpdate bool) (*models.Lot, error)
	// ListLots 依 lot_id 遞增排序
	ListLots(forUpdate bool) ([]models.Lot, error)
	UpdateLot(lot *models.Lot) error
	DeleteLot(id int) error

	CreateSpot(spot *models.Spot) error
	GetSpot(id int) (*models.Spot, error)
	// ListSpots 依建立順序 (spot_id 遞增) 回傳
	ListSpots(lotID int) ([]models.Spot, error)
	// SetSpotStatus 僅在目前狀態為 from 時改為 to，否則回傳 ErrConflict
	SetSpotStatus(id int, from, to models.SpotStatus) error
	// DeleteSpot 僅刪除空車位，否則回傳 ErrConflict
	DeleteSpot(id int) error

	CreateReservation(r *models.Reservation) error
	GetReservation(id int) (*models.Reservation, error)
	// ListReservations 依 reservation_id 遞減排序
	ListReservations(filter ReservationFilter) ([]models.Reservation, error)
	// CloseReservation 僅在預約尚未結束時寫入結束時間與費用
	CloseReservation(id int, end time.Time, cost float64) error
	// MarkSettled 僅在預約已結束且尚未付款時寫入收據
	MarkSettled(id int, receiptID string, at time.Time) error
	// DeleteClosedReservations 刪除已結束的預約，renterID 為 0 時刪除全部會員的紀錄
	DeleteClosedReservations(renterID int) (int64, error)
	SumSettledCost() (float64, error)

	CreateAccount(account *models.Account) error
	GetAccount(id int) (*models.Account, error)
	GetOperatorAccount() (*models.Account, error)
	// Debit 原子扣款，餘額不足時回傳 ErrConflict
	Debit(id int, amount float64) error
	Credit(id int, amount float64) error
	CreateReceipt(receipt *models.Receipt) error
}

// Store 交易入口
type Store interface {
	// Atomic 在單一讀寫交易中執行 fn，fn 回傳錯誤時整筆回滾
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// View 在唯讀交易中執行 fn
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
