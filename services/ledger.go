package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"

	"parkwise/models"
	"parkwise/store"
)

// Ledger 管理帳戶餘額與轉帳
type Ledger struct {
	store store.Store
	clock Clock
}

func NewLedger(st store.Store, clock Clock) *Ledger {
	return &Ledger{store: st, clock: clock}
}

// RoundMoney 四捨五入到小數第二位
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func validAmount(amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

// Transfer 從 from 轉 amount 到 to，扣款與入帳在同一個交易內完成
func (l *Ledger) Transfer(ctx context.Context, from, to int, amount float64) (*models.Receipt, error) {
	var receipt *models.Receipt
	err := l.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		receipt, err = l.transfer(tx, from, to, amount, 0)
		return err
	})
	if err != nil {
		log.Printf("Failed to transfer %.2f from account %d to %d: %v", amount, from, to, err)
		return nil, err
	}
	return receipt, nil
}

func (l *Ledger) transfer(tx store.Tx, from, to int, amount float64, reservationID int) (*models.Receipt, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	amount = RoundMoney(amount)

	if _, err := tx.GetAccount(from); err != nil {
		return nil, notFound(err, "account %d", from)
	}
	if _, err := tx.GetAccount(to); err != nil {
		return nil, notFound(err, "account %d", to)
	}

	// 同帳戶轉帳不改變餘額
	if from != to && amount > 0 {
		if err := tx.Debit(from, amount); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil, fmt.Errorf("%w: account %d cannot cover %.2f", ErrInsufficientFunds, from, amount)
			}
			return nil, notFound(err, "account %d", from)
		}
		if err := tx.Credit(to, amount); err != nil {
			return nil, notFound(err, "account %d", to)
		}
	}

	receipt := &models.Receipt{
		ReceiptID:     uuid.NewString(),
		ReservationID: reservationID,
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        amount,
		CreatedAt:     l.clock.Now(),
	}
	if err := tx.CreateReceipt(receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// OpenAccount 建立一般會員帳戶
func (l *Ledger) OpenAccount(ctx context.Context, accountID int, name string, balance float64) (*models.Account, error) {
	if accountID <= 0 {
		return nil, fmt.Errorf("%w: account id %d", ErrInvalidInput, accountID)
	}
	if err := validAmount(balance); err != nil {
		return nil, err
	}

	account := &models.Account{
		AccountID: accountID,
		Name:      name,
		Balance:   RoundMoney(balance),
		CreatedAt: l.clock.Now(),
	}
	err := l.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.CreateAccount(account); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("%w: account %d", ErrAlreadyExists, accountID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		log.Printf("Failed to open account %d: %v", accountID, err)
		return nil, err
	}
	log.Printf("Opened account %d with balance %.2f", accountID, account.Balance)
	return account, nil
}

// EnsureOperator 確保營運帳戶存在，不存在時以 initialBalance 建立
func (l *Ledger) EnsureOperator(ctx context.Context, accountID int, name string, initialBalance float64) (*models.Account, error) {
	if err := validAmount(initialBalance); err != nil {
		return nil, err
	}

	var operator *models.Account
	err := l.store.Atomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetOperatorAccount()
		if err == nil {
			operator = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		operator = &models.Account{
			AccountID:  accountID,
			Name:       name,
			Balance:    RoundMoney(initialBalance),
			IsOperator: true,
			CreatedAt:  l.clock.Now(),
		}
		if err := tx.CreateAccount(operator); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("%w: account %d exists and is not the operator", ErrAlreadyExists, accountID)
			}
			return err
		}
		log.Printf("Operator account created: account_id=%d, balance=%.2f", accountID, operator.Balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return operator, nil
}

// TopUp 管理員儲值，唯一會改變總餘額的操作
func (l *Ledger) TopUp(ctx context.Context, accountID int, amount float64) (*models.Account, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: top-up amount must be positive", ErrInvalidAmount)
	}

	var account *models.Account
	err := l.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.Credit(accountID, RoundMoney(amount)); err != nil {
			return notFound(err, "account %d", accountID)
		}
		var err error
		account, err = tx.GetAccount(accountID)
		return err
	})
	if err != nil {
		log.Printf("Failed to top up account %d: %v", accountID, err)
		return nil, err
	}
	log.Printf("Topped up account %d by %.2f, balance %.2f", accountID, amount, account.Balance)
	return account, nil
}

func (l *Ledger) Account(ctx context.Context, accountID int) (*models.Account, error) {
	var account *models.Account
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.GetAccount(accountID)
		return notFound(err, "account %d", accountID)
	})
	if err != nil {
		return nil, err
	}
	account.Balance = RoundMoney(account.Balance)
	return account, nil
}

func (l *Ledger) Balance(ctx context.Context, accountID int) (float64, error) {
	account, err := l.Account(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (l *Ledger) Operator(ctx context.Context) (*models.Account, error) {
	var account *models.Account
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.GetOperatorAccount()
		return notFound(err, "operator account")
	})
	if err != nil {
		return nil, err
	}
	account.Balance = RoundMoney(account.Balance)
	return account, nil
}
