package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"gopkg.in/guregu/null.v4"

	"parkwise/models"
)

var (
	lotsBucket         = []byte("lots")
	spotsBucket        = []byte("spots")
	reservationsBucket = []byte("reservations")
	accountsBucket     = []byte("accounts")
	receiptsBucket     = []byte("receipts")
)

// BoltStore 以 BoltDB 檔案保存所有資料，適合單機部署與測試。
// BoltDB 同一時間只允許一個寫入交易，因此條件式更新不需要額外鎖定。
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore 開啟 (或建立) 指定路徑的資料庫並確保所有 bucket 存在
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{lotsBucket, spotsBucket, reservationsBucket, accountsBucket, receiptsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (s *BoltStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltTx struct {
	tx *bolt.Tx
}

func itob(v int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func (t *boltTx) get(bucket, key []byte, v interface{}) error {
	data := t.tx.Bucket(bucket).Get(key)
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func (t *boltTx) put(bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.tx.Bucket(bucket).Put(key, data)
}

func (t *boltTx) nextID(bucket []byte) (int, error) {
	id, err := t.tx.Bucket(bucket).NextSequence()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

func (t *boltTx) CreateLot(lot *models.Lot) error {
	id, err := t.nextID(lotsBucket)
	if err != nil {
		return fmt.Errorf("create lot: %w", err)
	}
	lot.LotID = id
	if err := t.put(lotsBucket, itob(id), lot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}
	return nil
}

func (t *boltTx) GetLot(id int, _ bool) (*models.Lot, error) {
	var lot models.Lot
	if err := t.get(lotsBucket, itob(id), &lot); err != nil {
		return nil, fmt.Errorf("get lot %d: %w", id, err)
	}
	return &lot, nil
}

func (t *boltTx) ListLots(_ bool) ([]models.Lot, error) {
	var lots []models.Lot
	err := t.tx.Bucket(lotsBucket).ForEach(func(k, v []byte) error {
		var lot models.Lot
		if err := json.Unmarshal(v, &lot); err != nil {
			return err
		}
		lots = append(lots, lot)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return lots, nil
}

func (t *boltTx) UpdateLot(lot *models.Lot) error {
	stored, err := t.GetLot(lot.LotID, true)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	stored.Name = lot.Name
	stored.Address = lot.Address
	stored.Pincode = lot.Pincode
	stored.Price = lot.Price
	stored.Capacity = lot.Capacity
	if err := t.put(lotsBucket, itob(lot.LotID), stored); err != nil {
		return fmt.Errorf("update lot %d: %w", lot.LotID, err)
	}
	return nil
}

func (t *boltTx) DeleteLot(id int) error {
	b := t.tx.Bucket(lotsBucket)
	if b.Get(itob(id)) == nil {
		return fmt.Errorf("delete lot %d: %w", id, ErrNotFound)
	}
	if err := b.Delete(itob(id)); err != nil {
		return fmt.Errorf("delete lot %d: %w", id, err)
	}
	return nil
}

func (t *boltTx) CreateSpot(spot *models.Spot) error {
	id, err := t.nextID(spotsBucket)
	if err != nil {
		return fmt.Errorf("create spot in lot %d: %w", spot.LotID, err)
	}
	spot.SpotID = id
	if err := t.put(spotsBucket, itob(id), spot); err != nil {
		return fmt.Errorf("create spot in lot %d: %w", spot.LotID, err)
	}
	return nil
}

func (t *boltTx) GetSpot(id int) (*models.Spot, error) {
	var spot models.Spot
	if err := t.get(spotsBucket, itob(id), &spot); err != nil {
		return nil, fmt.Errorf("get spot %d: %w", id, err)
	}
	return &spot, nil
}

func (t *boltTx) ListSpots(lotID int) ([]models.Spot, error) {
	var spots []models.Spot
	err := t.tx.Bucket(spotsBucket).ForEach(func(k, v []byte) error {
		var spot models.Spot
		if err := json.Unmarshal(v, &spot); err != nil {
			return err
		}
		if spot.LotID == lotID {
			spots = append(spots, spot)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list spots of lot %d: %w", lotID, err)
	}
	return spots, nil
}

func (t *boltTx) SetSpotStatus(id int, from, to models.SpotStatus) error {
	spot, err := t.GetSpot(id)
	if err != nil {
		return err
	}
	if spot.Status != from {
		return fmt.Errorf("spot %d is not %s: %w", id, from, ErrConflict)
	}
	spot.Status = to
	if err := t.put(spotsBucket, itob(id), spot); err != nil {
		return fmt.Errorf("set spot %d status: %w", id, err)
	}
	return nil
}

func (t *boltTx) DeleteSpot(id int) error {
	spot, err := t.GetSpot(id)
	if err != nil {
		return err
	}
	if spot.Status != models.SpotAvailable {
		return fmt.Errorf("spot %d is occupied: %w", id, ErrConflict)
	}
	if err := t.tx.Bucket(spotsBucket).Delete(itob(id)); err != nil {
		return fmt.Errorf("delete spot %d: %w", id, err)
	}
	return nil
}

func (t *boltTx) CreateReservation(r *models.Reservation) error {
	id, err := t.nextID(reservationsBucket)
	if err != nil {
		return fmt.Errorf("create reservation on spot %d: %w", r.SpotID, err)
	}
	r.ReservationID = id
	if err := t.put(reservationsBucket, itob(id), r); err != nil {
		return fmt.Errorf("create reservation on spot %d: %w", r.SpotID, err)
	}
	return nil
}

func (t *boltTx) GetReservation(id int) (*models.Reservation, error) {
	var r models.Reservation
	if err := t.get(reservationsBucket, itob(id), &r); err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return &r, nil
}

func matches(r *models.Reservation, f ReservationFilter) bool {
	if f.RenterID != 0 && r.RenterID != f.RenterID {
		return false
	}
	if f.SpotID != 0 && r.SpotID != f.SpotID {
		return false
	}
	if f.OpenOnly && !r.IsOpen() {
		return false
	}
	if f.ClosedOnly && r.IsOpen() {
		return false
	}
	if f.UnsettledOnly && (r.IsOpen() || r.ReceiptID.Valid) {
		return false
	}
	return true
}

func (t *boltTx) ListReservations(f ReservationFilter) ([]models.Reservation, error) {
	var list []models.Reservation
	c := t.tx.Bucket(reservationsBucket).Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		var r models.Reservation
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, fmt.Errorf("list reservations: %w", err)
		}
		if matches(&r, f) {
			list = append(list, r)
		}
	}
	return list, nil
}

func (t *boltTx) CloseReservation(id int, end time.Time, cost float64) error {
	r, err := t.GetReservation(id)
	if err != nil {
		return err
	}
	if !r.IsOpen() {
		return fmt.Errorf("reservation %d already closed: %w", id, ErrConflict)
	}
	r.EndTime = &end
	r.Cost = null.FloatFrom(roundMoney(cost))
	if err := t.put(reservationsBucket, itob(id), r); err != nil {
		return fmt.Errorf("close reservation %d: %w", id, err)
	}
	return nil
}

func (t *boltTx) MarkSettled(id int, receiptID string, at time.Time) error {
	r, err := t.GetReservation(id)
	if err != nil {
		return err
	}
	if r.IsOpen() || r.ReceiptID.Valid {
		return fmt.Errorf("reservation %d is open or already settled: %w", id, ErrConflict)
	}
	r.ReceiptID = null.StringFrom(receiptID)
	r.SettledAt = &at
	if err := t.put(reservationsBucket, itob(id), r); err != nil {
		return fmt.Errorf("settle reservation %d: %w", id, err)
	}
	return nil
}

func (t *boltTx) DeleteClosedReservations(renterID int) (int64, error) {
	b := t.tx.Bucket(reservationsBucket)

	// 先收集 key，ForEach 期間不能修改 bucket
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var r models.Reservation
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		if matches(&r, ReservationFilter{RenterID: renterID, ClosedOnly: true}) {
			keys = append(keys, bytes.Clone(k))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete closed reservations: %w", err)
	}

	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, fmt.Errorf("delete closed reservations: %w", err)
		}
	}
	return int64(len(keys)), nil
}

func (t *boltTx) SumSettledCost() (float64, error) {
	var total float64
	err := t.tx.Bucket(reservationsBucket).ForEach(func(k, v []byte) error {
		var r models.Reservation
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		if r.IsSettled() {
			total += r.Cost.Float64
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sum settled cost: %w", err)
	}
	return roundMoney(total), nil
}

func (t *boltTx) CreateAccount(account *models.Account) error {
	b := t.tx.Bucket(accountsBucket)
	if b.Get(itob(account.AccountID)) != nil {
		return fmt.Errorf("create account %d: %w", account.AccountID, ErrDuplicate)
	}
	account.Balance = roundMoney(account.Balance)
	if err := t.put(accountsBucket, itob(account.AccountID), account); err != nil {
		return fmt.Errorf("create account %d: %w", account.AccountID, err)
	}
	return nil
}

func (t *boltTx) GetAccount(id int) (*models.Account, error) {
	var account models.Account
	if err := t.get(accountsBucket, itob(id), &account); err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return &account, nil
}

func (t *boltTx) GetOperatorAccount() (*models.Account, error) {
	c := t.tx.Bucket(accountsBucket).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var account models.Account
		if err := json.Unmarshal(v, &account); err != nil {
			return nil, fmt.Errorf("get operator account: %w", err)
		}
		if account.IsOperator {
			return &account, nil
		}
	}
	return nil, fmt.Errorf("get operator account: %w", ErrNotFound)
}

func (t *boltTx) Debit(id int, amount float64) error {
	account, err := t.GetAccount(id)
	if err != nil {
		return err
	}
	if account.Balance < amount {
		return fmt.Errorf("account %d balance below %.2f: %w", id, amount, ErrConflict)
	}
	account.Balance = roundMoney(account.Balance - amount)
	if err := t.put(accountsBucket, itob(id), account); err != nil {
		return fmt.Errorf("debit account %d: %w", id, err)
	}
	return nil
}

func (t *boltTx) Credit(id int, amount float64) error {
	account, err := t.GetAccount(id)
	if err != nil {
		return err
	}
	account.Balance = roundMoney(account.Balance + amount)
	if err := t.put(accountsBucket, itob(id), account); err != nil {
		return fmt.Errorf("credit account %d: %w", id, err)
	}
	return nil
}

func (t *boltTx) CreateReceipt(receipt *models.Receipt) error {
	b := t.tx.Bucket(receiptsBucket)
	if b.Get([]byte(receipt.ReceiptID)) != nil {
		return fmt.Errorf("create receipt %s: %w", receipt.ReceiptID, ErrDuplicate)
	}
	if err := t.put(receiptsBucket, []byte(receipt.ReceiptID), receipt); err != nil {
		return fmt.Errorf("create receipt %s: %w", receipt.ReceiptID, err)
	}
	return nil
}
