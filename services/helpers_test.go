package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parkwise/events"
	"parkwise/models"
	"parkwise/services"
	"parkwise/store"
)

const operatorID = 1

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	ctx       context.Context
	store     store.Store
	clock     *fakeClock
	registry  *services.SpotRegistry
	ledger    *services.Ledger
	lots      *services.LotService
	engine    *services.ReservationEngine
	auditor   *services.Auditor
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts ...services.EngineOption) *fixture {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		ctx:       context.Background(),
		store:     st,
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
	}
	f.registry = services.NewSpotRegistry(st)
	f.ledger = services.NewLedger(st, f.clock)
	f.lots = services.NewLotService(st, f.registry, f.clock)
	f.auditor = services.NewAuditor(st, f.clock)
	opts = append([]services.EngineOption{services.WithPublisher(f.publisher)}, opts...)
	f.engine = services.NewReservationEngine(st, f.registry, f.ledger, f.clock, opts...)

	_, err = f.ledger.EnsureOperator(f.ctx, operatorID, "admin", 5)
	require.NoError(t, err)
	return f
}

func (f *fixture) lot(t *testing.T, name string, price float64, capacity int) *models.Lot {
	t.Helper()
	lot, err := f.lots.CreateLot(f.ctx, services.LotInput{Name: name, Price: price, Capacity: capacity})
	require.NoError(t, err)
	return lot
}

func (f *fixture) account(t *testing.T, id int, balance float64) {
	t.Helper()
	_, err := f.ledger.OpenAccount(f.ctx, id, "renter", balance)
	require.NoError(t, err)
}

func (f *fixture) reserveIn(t *testing.T, renterID, lotID int) *models.Reservation {
	t.Helper()
	r, err := f.engine.Reserve(f.ctx, services.ReserveRequest{RenterID: renterID, LotID: &lotID})
	require.NoError(t, err)
	return r
}

func (f *fixture) spots(t *testing.T, lotID int) []models.Spot {
	t.Helper()
	spots, err := f.lots.ListSpots(f.ctx, lotID)
	require.NoError(t, err)
	return spots
}

func (f *fixture) spot(t *testing.T, spotID int) *models.Spot {
	t.Helper()
	var spot *models.Spot
	err := f.store.View(f.ctx, func(tx store.Tx) error {
		var err error
		spot, err = tx.GetSpot(spotID)
		return err
	})
	require.NoError(t, err)
	return spot
}

func (f *fixture) balance(t *testing.T, accountID int) float64 {
	t.Helper()
	b, err := f.ledger.Balance(f.ctx, accountID)
	require.NoError(t, err)
	return b
}

func countOccupied(spots []models.Spot) int {
	n := 0
	for _, s := range spots {
		if !s.IsAvailable() {
			n++
		}
	}
	return n
}

var errPersist = errors.New("disk full")

// failingStore 讓 CreateReservation 失敗，用於驗證佔位會一併回滾
type failingStore struct {
	store.Store
}

func (s failingStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Atomic(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) CreateReservation(*models.Reservation) error {
	return errPersist
}

func intPtr(v int) *int { return &v }
