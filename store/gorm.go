package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkwise/models"
)

// GormStore 以 GORM 實作 Store，支援 MySQL、PostgreSQL 與 SQLite (測試用)
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

func (s *GormStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.Atomic(ctx, fn)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db *gorm.DB
}

// locked 加上 SELECT ... FOR UPDATE，SQLite 不支援列鎖，交易本身已序列化寫入
func (t *gormTx) locked(forUpdate bool) *gorm.DB {
	if forUpdate && t.db.Dialector.Name() != "sqlite" {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *gormTx) CreateLot(lot *models.Lot) error {
	if err := t.db.Create(lot).Error; err != nil {
		return fmt.Errorf("create lot: %w", translate(err))
	}
	return nil
}

func (t *gormTx) GetLot(id int, forUpdate bool) (*models.Lot, error) {
	var lot models.Lot
	if err := t.locked(forUpdate).Where("lot_id = ?", id).First(&lot).Error; err != nil {
		return nil, fmt.Errorf("get lot %d: %w", id, translate(err))
	}
	return &lot, nil
}

func (t *gormTx) ListLots(forUpdate bool) ([]models.Lot, error) {
	var lots []models.Lot
	if err := t.locked(forUpdate).Order("lot_id ASC").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("list lots: %w", translate(err))
	}
	return lots, nil
}

func (t *gormTx) UpdateLot(lot *models.Lot) error {
	err := t.db.Model(&models.Lot{}).Where("lot_id = ?", lot.LotID).Updates(map[string]interface{}{
		"name":      lot.Name,
		"address":   lot.Address,
		"pincode":   lot.Pincode,
		"price":     lot.Price,
		"max_spots": lot.Capacity,
	}).Error
	if err != nil {
		return fmt.Errorf("update lot %d: %w", lot.LotID, translate(err))
	}
	return nil
}

func (t *gormTx) DeleteLot(id int) error {
	res := t.db.Where("lot_id = ?", id).Delete(&models.Lot{})
	if res.Error != nil {
		return fmt.Errorf("delete lot %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete lot %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *gormTx) CreateSpot(spot *models.Spot) error {
	if err := t.db.Create(spot).Error; err != nil {
		return fmt.Errorf("create spot in lot %d: %w", spot.LotID, translate(err))
	}
	return nil
}

func (t *gormTx) GetSpot(id int) (*models.Spot, error) {
	var spot models.Spot
	if err := t.db.Where("spot_id = ?", id).First(&spot).Error; err != nil {
		return nil, fmt.Errorf("get spot %d: %w", id, translate(err))
	}
	return &spot, nil
}

func (t *gormTx) ListSpots(lotID int) ([]models.Spot, error) {
	var spots []models.Spot
	if err := t.db.Where("lot_id = ?", lotID).Order("spot_id ASC").Find(&spots).Error; err != nil {
		return nil, fmt.Errorf("list spots of lot %d: %w", lotID, translate(err))
	}
	return spots, nil
}

func (t *gormTx) SetSpotStatus(id int, from, to models.SpotStatus) error {
	res := t.db.Model(&models.Spot{}).
		Where("spot_id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("set spot %d status: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.missingOrConflict(&models.Spot{}, "spot_id = ?", id, fmt.Sprintf("spot %d is not %s", id, from))
	}
	return nil
}

func (t *gormTx) DeleteSpot(id int) error {
	res := t.db.Where("spot_id = ? AND status = ?", id, models.SpotAvailable).Delete(&models.Spot{})
	if res.Error != nil {
		return fmt.Errorf("delete spot %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.missingOrConflict(&models.Spot{}, "spot_id = ?", id, fmt.Sprintf("spot %d is occupied", id))
	}
	return nil
}

func (t *gormTx) CreateReservation(r *models.Reservation) error {
	if err := t.db.Create(r).Error; err != nil {
		return fmt.Errorf("create reservation on spot %d: %w", r.SpotID, translate(err))
	}
	return nil
}

func (t *gormTx) GetReservation(id int) (*models.Reservation, error) {
	var r models.Reservation
	if err := t.db.Where("reservation_id = ?", id).First(&r).Error; err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, translate(err))
	}
	return &r, nil
}

func (t *gormTx) applyFilter(q *gorm.DB, f ReservationFilter) *gorm.DB {
	if f.RenterID != 0 {
		q = q.Where("renter_id = ?", f.RenterID)
	}
	if f.SpotID != 0 {
		q = q.Where("spot_id = ?", f.SpotID)
	}
	if f.OpenOnly {
		q = q.Where("end_time IS NULL")
	}
	if f.ClosedOnly {
		q = q.Where("end_time IS NOT NULL")
	}
	if f.UnsettledOnly {
		q = q.Where("end_time IS NOT NULL AND receipt_id IS NULL")
	}
	return q
}

func (t *gormTx) ListReservations(f ReservationFilter) ([]models.Reservation, error) {
	var list []models.Reservation
	q := t.applyFilter(t.db.Model(&models.Reservation{}), f)
	if err := q.Order("reservation_id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list reservations: %w", translate(err))
	}
	return list, nil
}

func (t *gormTx) CloseReservation(id int, end time.Time, cost float64) error {
	res := t.db.Model(&models.Reservation{}).
		Where("reservation_id = ? AND end_time IS NULL", id).
		Updates(map[string]interface{}{"end_time": end, "cost": roundMoney(cost)})
	if res.Error != nil {
		return fmt.Errorf("close reservation %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.missingOrConflict(&models.Reservation{}, "reservation_id = ?", id, fmt.Sprintf("reservation %d already closed", id))
	}
	return nil
}

func (t *gormTx) MarkSettled(id int, receiptID string, at time.Time) error {
	res := t.db.Model(&models.Reservation{}).
		Where("reservation_id = ? AND end_time IS NOT NULL AND receipt_id IS NULL", id).
		Updates(map[string]interface{}{"receipt_id": receiptID, "settled_at": at})
	if res.Error != nil {
		return fmt.Errorf("settle reservation %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.missingOrConflict(&models.Reservation{}, "reservation_id = ?", id, fmt.Sprintf("reservation %d is open or already settled", id))
	}
	return nil
}

func (t *gormTx) DeleteClosedReservations(renterID int) (int64, error) {
	q := t.db.Where("end_time IS NOT NULL")
	if renterID != 0 {
		q = q.Where("renter_id = ?", renterID)
	}
	res := q.Delete(&models.Reservation{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete closed reservations: %w", translate(res.Error))
	}
	return res.RowsAffected, nil
}

func (t *gormTx) SumSettledCost() (float64, error) {
	var total float64
	err := t.db.Model(&models.Reservation{}).
		Where("receipt_id IS NOT NULL").
		Select("COALESCE(SUM(cost), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum settled cost: %w", translate(err))
	}
	return roundMoney(total), nil
}

func (t *gormTx) CreateAccount(account *models.Account) error {
	if err := t.db.Create(account).Error; err != nil {
		return fmt.Errorf("create account %d: %w", account.AccountID, translate(err))
	}
	return nil
}

func (t *gormTx) GetAccount(id int) (*models.Account, error) {
	var account models.Account
	if err := t.db.Where("account_id = ?", id).First(&account).Error; err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, translate(err))
	}
	return &account, nil
}

func (t *gormTx) GetOperatorAccount() (*models.Account, error) {
	var account models.Account
	if err := t.db.Where("is_operator = ?", true).Order("account_id ASC").First(&account).Error; err != nil {
		return nil, fmt.Errorf("get operator account: %w", translate(err))
	}
	return &account, nil
}

func (t *gormTx) Debit(id int, amount float64) error {
	res := t.db.Model(&models.Account{}).
		Where("account_id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("debit account %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.missingOrConflict(&models.Account{}, "account_id = ?", id, fmt.Sprintf("account %d balance below %.2f", id, amount))
	}
	return nil
}

func (t *gormTx) Credit(id int, amount float64) error {
	res := t.db.Model(&models.Account{}).
		Where("account_id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("credit account %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("credit account %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *gormTx) CreateReceipt(receipt *models.Receipt) error {
	if err := t.db.Create(receipt).Error; err != nil {
		return fmt.Errorf("create receipt: %w", translate(err))
	}
	return nil
}

// missingOrConflict 條件式更新沒有命中時，區分資料不存在與狀態衝突
func (t *gormTx) missingOrConflict(model interface{}, query string, id int, reason string) error {
	var count int64
	if err := t.db.Model(model).Where(query, id).Count(&count).Error; err != nil {
		return translate(err)
	}
	if count == 0 {
		return fmt.Errorf("%s: %w", reason, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", reason, ErrConflict)
}

// translate 將 GORM 與驅動程式錯誤轉為本套件的錯誤
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
