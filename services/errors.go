package services

import (
	"errors"
	"fmt"

	"parkwise/store"
)

var (
	// ErrNoAvailability 找不到空車位
	ErrNoAvailability = errors.New("no available spot")
	// ErrInvalidState 車位已處於目標狀態，通常代表競爭或呼叫端錯誤
	ErrInvalidState = errors.New("invalid spot state")
	// ErrCapacity 調整或刪除停車場會違反占用或上限限制
	ErrCapacity          = errors.New("capacity constraint violated")
	ErrTooManyOccupied   = fmt.Errorf("%w: too many spots occupied to shrink", ErrCapacity)
	ErrAboveCeiling      = fmt.Errorf("%w: above ceiling", ErrCapacity)
	ErrLotOccupied       = fmt.Errorf("%w: lot has occupied spots", ErrCapacity)
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidDuration 結束時間早於開始時間，視為資料損毀
	ErrInvalidDuration = errors.New("end time before start time")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyClosed   = errors.New("reservation already closed")
	ErrAlreadySettled  = errors.New("reservation already settled")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyExists   = errors.New("already exists")
)

// notFound 將 store.ErrNotFound 轉為 ErrNotFound，其他錯誤原樣回傳
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
