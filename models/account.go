package models

import "time"

// Account 會員帳戶餘額，AccountID 與會員 ID 相同
type Account struct {
	AccountID  int       `json:"account_id" gorm:"primaryKey;autoIncrement:false;type:INT"`
	Name       string    `json:"name" gorm:"type:varchar(100)"`
	Balance    float64   `json:"balance" gorm:"type:decimal(12,2);not null"`
	IsOperator bool      `json:"is_operator" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"precision:3;not null"`
}

func (Account) TableName() string {
	return "account"
}

// Receipt 成功轉帳的紀錄
type Receipt struct {
	ReceiptID     string    `json:"receipt_id" gorm:"primaryKey;type:varchar(36)"`
	ReservationID int       `json:"reservation_id" gorm:"index;type:INT"` // 直接轉帳時為 0
	FromAccountID int       `json:"from_account_id" gorm:"not null;type:INT"`
	ToAccountID   int       `json:"to_account_id" gorm:"not null;type:INT"`
	Amount        float64   `json:"amount" gorm:"type:decimal(12,2);not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"precision:3;not null"`
}

func (Receipt) TableName() string {
	return "receipt"
}

type OpenAccountRequest struct {
	AccountID int     `json:"account_id" binding:"required,gt=0"`
	Name      string  `json:"name" binding:"omitempty,max=100"`
	Balance   float64 `json:"balance" binding:"gte=0"`
}

type TopUpRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}
