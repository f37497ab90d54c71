package models

import "time"

// Lot 定義停車場模型
type Lot struct {
	LotID     int       `json:"lot_id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Address   string    `json:"address" gorm:"type:varchar(200)"`
	Pincode   string    `json:"pincode" gorm:"type:varchar(20)"`
	Price     float64   `json:"price" gorm:"type:decimal(10,2);not null"` // 每小時價格
	Capacity  int       `json:"max_spots" gorm:"column:max_spots;type:INT;not null"`
	Ceiling   int       `json:"ceiling" gorm:"type:INT;not null"` // 建立時的車位數，擴充上限
	CreatedAt time.Time `json:"created_at" gorm:"precision:3;not null"`
}

func (Lot) TableName() string {
	return "parking_lot"
}

// LotResponse 定義停車場回應結構
type LotResponse struct {
	LotID     int       `json:"lot_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Pincode   string    `json:"pincode"`
	Price     float64   `json:"price"`
	Capacity  int       `json:"max_spots"`
	Ceiling   int       `json:"ceiling"`
	Occupied  int       `json:"occupied_spots"`
	Available int       `json:"available_spots"`
	CreatedAt time.Time `json:"created_at"`
}

func (l *Lot) ToResponse(occupied, available int) LotResponse {
	return LotResponse{
		LotID:     l.LotID,
		Name:      l.Name,
		Address:   l.Address,
		Pincode:   l.Pincode,
		Price:     l.Price,
		Capacity:  l.Capacity,
		Ceiling:   l.Ceiling,
		Occupied:  occupied,
		Available: available,
		CreatedAt: l.CreatedAt,
	}
}

// CreateLotRequest 用於 POST 新增停車場
type CreateLotRequest struct {
	Name     string  `json:"name" binding:"required,max=100"`
	Address  string  `json:"address" binding:"omitempty,max=200"`
	Pincode  string  `json:"pincode" binding:"omitempty,max=20"`
	Price    float64 `json:"price" binding:"gte=0"`
	MaxSpots int     `json:"max_spots" binding:"gte=0"`
}

// UpdateLotRequest 用於 PUT 更新，未提供的欄位保持不變
type UpdateLotRequest struct {
	Name     *string  `json:"name" binding:"omitempty,max=100"`
	Address  *string  `json:"address" binding:"omitempty,max=200"`
	Pincode  *string  `json:"pincode" binding:"omitempty,max=20"`
	Price    *float64 `json:"price" binding:"omitempty,gte=0"`
	MaxSpots *int     `json:"max_spots" binding:"omitempty,gte=0"`
}

// ResizeLotRequest 用於 PUT 調整車位數
type ResizeLotRequest struct {
	MaxSpots *int `json:"max_spots" binding:"required,gte=0"`
}
