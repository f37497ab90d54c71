package models

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// TripMetadata 預約附帶的行程資料，僅作紀錄用途
type TripMetadata struct {
	RenterName    string `json:"renter_name" gorm:"type:varchar(100)"`
	VehicleType   string `json:"vehicle_type" gorm:"type:varchar(50)"`
	VehicleNumber string `json:"vehicle_number" gorm:"type:varchar(20)"`
	Contact       string `json:"contact" gorm:"type:varchar(255)"` // 可能為 AES-GCM 密文
}

// Reservation 預約紀錄。EndTime 為 nil 表示尚未離場
type Reservation struct {
	ReservationID int         `json:"reservation_id" gorm:"primaryKey;autoIncrement"`
	SpotID        int         `json:"spot_id" gorm:"index;not null;type:INT"`
	LotID         int         `json:"lot_id" gorm:"index;not null;type:INT"`
	RenterID      int         `json:"renter_id" gorm:"index;not null;type:INT"`
	StartTime     time.Time   `json:"start_time" gorm:"precision:3;not null"`
	EndTime       *time.Time  `json:"end_time" gorm:"precision:3"`
	UnitPrice     float64     `json:"unit_price" gorm:"type:decimal(10,2);not null"` // 建立時的停車場價格快照
	Cost          null.Float  `json:"cost" gorm:"type:decimal(10,2)"`
	ReceiptID     null.String `json:"receipt_id" gorm:"type:varchar(36)"`
	SettledAt     *time.Time  `json:"settled_at" gorm:"precision:3"`
	TripMetadata  `gorm:"embedded"`
}

func (Reservation) TableName() string {
	return "reservation"
}

const (
	ReservationOpen   = "open"
	ReservationClosed = "closed"
)

func (r *Reservation) IsOpen() bool {
	return r.EndTime == nil
}

// IsSettled 費用已計算且轉帳成功
func (r *Reservation) IsSettled() bool {
	return r.Cost.Valid && r.ReceiptID.Valid
}

func (r *Reservation) Status() string {
	if r.IsOpen() {
		return ReservationOpen
	}
	return ReservationClosed
}

type ReservationResponse struct {
	ReservationID int         `json:"reservation_id"`
	SpotID        int         `json:"spot_id"`
	LotID         int         `json:"lot_id"`
	RenterID      int         `json:"renter_id"`
	Status        string      `json:"status"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       *time.Time  `json:"end_time"`
	UnitPrice     float64     `json:"unit_price"`
	Cost          null.Float  `json:"cost"`
	Settled       bool        `json:"settled"`
	ReceiptID     null.String `json:"receipt_id"`
	SettledAt     *time.Time  `json:"settled_at"`
	TripMetadata
}

func (r *Reservation) ToResponse() ReservationResponse {
	return ReservationResponse{
		ReservationID: r.ReservationID,
		SpotID:        r.SpotID,
		LotID:         r.LotID,
		RenterID:      r.RenterID,
		Status:        r.Status(),
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		UnitPrice:     r.UnitPrice,
		Cost:          r.Cost,
		Settled:       r.IsSettled(),
		ReceiptID:     r.ReceiptID,
		SettledAt:     r.SettledAt,
		TripMetadata:  r.TripMetadata,
	}
}

// ReserveRequest 預約請求，lot_id 與 spot_id 皆可省略
type ReserveRequest struct {
	LotID         *int   `json:"lot_id" binding:"omitempty,gt=0"`
	SpotID        *int   `json:"spot_id" binding:"omitempty,gt=0"`
	RenterName    string `json:"renter_name" binding:"omitempty,max=100"`
	VehicleType   string `json:"vehicle_type" binding:"omitempty,max=50"`
	VehicleNumber string `json:"vehicle_number" binding:"omitempty,max=20"`
	Contact       string `json:"contact" binding:"omitempty,max=100"`
}

// SettleRequest 確認付款金額
type SettleRequest struct {
	Cost *float64 `json:"cost" binding:"required,gte=0"`
}
