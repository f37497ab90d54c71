package models

// SpotStatus 車位狀態
type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotOccupied  SpotStatus = "occupied"
)

type Spot struct {
	SpotID int        `json:"spot_id" gorm:"primaryKey;autoIncrement"`
	LotID  int        `json:"lot_id" gorm:"index;not null;type:INT"`
	Status SpotStatus `json:"status" gorm:"type:varchar(16);not null"`
}

func (Spot) TableName() string {
	return "parking_spot"
}

func (s *Spot) IsAvailable() bool {
	return s.Status == SpotAvailable
}
