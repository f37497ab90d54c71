package services

import (
	"context"
	"log"
	"sort"
	"time"

	"parkwise/models"
	"parkwise/store"
)

// AuditReport 車位、預約與容量之間的一致性檢查結果
type AuditReport struct {
	CheckedAt time.Time `json:"checked_at"`
	Lots      int       `json:"lots"`
	// 占用數超過容量的停車場
	OverCapacity []int `json:"over_capacity_lots"`
	// 車位數與 max_spots 不一致的停車場
	CapacityDrift []int `json:"capacity_drift_lots"`
	// 占用中但沒有進行中預約的車位
	OrphanedSpots []int `json:"orphaned_spots"`
	// 進行中預約指向空車位或不存在的車位
	StaleReservations []int `json:"stale_reservations"`
	// 同一車位有多筆進行中預約
	DoubleBookedSpots []int `json:"double_booked_spots"`
	Unsettled         int   `json:"unsettled_reservations"`
}

func (r *AuditReport) Healthy() bool {
	return len(r.OverCapacity) == 0 && len(r.CapacityDrift) == 0 &&
		len(r.OrphanedSpots) == 0 && len(r.StaleReservations) == 0 && len(r.DoubleBookedSpots) == 0
}

type Auditor struct {
	store store.Store
	clock Clock
}

func NewAuditor(st store.Store, clock Clock) *Auditor {
	return &Auditor{store: st, clock: clock}
}

// Run 在唯讀交易中比對所有停車場的車位與進行中預約
func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{
		CheckedAt:         a.clock.Now(),
		OverCapacity:      []int{},
		CapacityDrift:     []int{},
		OrphanedSpots:     []int{},
		StaleReservations: []int{},
		DoubleBookedSpots: []int{},
	}

	err := a.store.View(ctx, func(tx store.Tx) error {
		lots, err := tx.ListLots(false)
		if err != nil {
			return err
		}
		open, err := tx.ListReservations(store.ReservationFilter{OpenOnly: true})
		if err != nil {
			return err
		}
		unsettled, err := tx.ListReservations(store.ReservationFilter{UnsettledOnly: true})
		if err != nil {
			return err
		}
		report.Lots = len(lots)
		report.Unsettled = len(unsettled)

		openBySpot := make(map[int][]int)
		for _, r := range open {
			openBySpot[r.SpotID] = append(openBySpot[r.SpotID], r.ReservationID)
		}

		spotStatus := make(map[int]models.SpotStatus)
		for _, lot := range lots {
			spots, err := tx.ListSpots(lot.LotID)
			if err != nil {
				return err
			}
			occupied := 0
			for _, spot := range spots {
				spotStatus[spot.SpotID] = spot.Status
				if spot.IsAvailable() {
					continue
				}
				occupied++
				if len(openBySpot[spot.SpotID]) == 0 {
					report.OrphanedSpots = append(report.OrphanedSpots, spot.SpotID)
				}
			}
			if occupied > lot.Capacity {
				report.OverCapacity = append(report.OverCapacity, lot.LotID)
			}
			if len(spots) != lot.Capacity {
				report.CapacityDrift = append(report.CapacityDrift, lot.LotID)
			}
		}

		for _, r := range open {
			if status, ok := spotStatus[r.SpotID]; !ok || status != models.SpotOccupied {
				report.StaleReservations = append(report.StaleReservations, r.ReservationID)
			}
		}
		for spotID, ids := range openBySpot {
			if len(ids) > 1 {
				report.DoubleBookedSpots = append(report.DoubleBookedSpots, spotID)
			}
		}
		sort.Ints(report.DoubleBookedSpots)
		return nil
	})
	if err != nil {
		log.Printf("Failed to audit occupancy: %v", err)
		return nil, err
	}

	if report.Healthy() {
		log.Printf("Occupancy audit passed: %d lots, %d unsettled reservations", report.Lots, report.Unsettled)
	} else {
		log.Printf("Occupancy audit found inconsistencies: over_capacity=%v, drift=%v, orphaned=%v, stale=%v, double_booked=%v",
			report.OverCapacity, report.CapacityDrift, report.OrphanedSpots, report.StaleReservations, report.DoubleBookedSpots)
	}
	return report, nil
}
