package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"parkwise/models"
	"parkwise/services"
)

func reservationResponses(list []models.Reservation) []models.ReservationResponse {
	responses := make([]models.ReservationResponse, len(list))
	for i := range list {
		responses[i] = list[i].ToResponse()
	}
	return responses
}

// ReserveSpot 預約車位。未指定 lot_id 與 spot_id 時由系統依停車場順序分配
func (h *Handler) ReserveSpot(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	reservation, err := h.engine.Reserve(c.Request.Context(), services.ReserveRequest{
		RenterID: currentMember(c),
		LotID:    req.LotID,
		SpotID:   req.SpotID,
		Metadata: models.TripMetadata{
			RenterName:    req.RenterName,
			VehicleType:   req.VehicleType,
			VehicleNumber: req.VehicleNumber,
			Contact:       req.Contact,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "預約成功", reservation.ToResponse())
}

// ownedReservation 取得預約並確認屬於目前會員 (管理員不限)
func (h *Handler) ownedReservation(c *gin.Context) (*models.Reservation, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	reservation, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if reservation.RenterID != currentMember(c) && !isAdmin(c) {
		log.Printf("Unauthorized access: member_id=%d, reservation_id=%d", currentMember(c), id)
		ErrorResponse(c, http.StatusForbidden, "無權限操作此預約", "reservation belongs to another member", "ERR_FORBIDDEN")
		return nil, false
	}
	return reservation, true
}

func (h *Handler) GetReservation(c *gin.Context) {
	reservation, ok := h.ownedReservation(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", reservation.ToResponse())
}

// ReleaseReservation 離場，計算費用並釋放車位
func (h *Handler) ReleaseReservation(c *gin.Context) {
	reservation, ok := h.ownedReservation(c)
	if !ok {
		return
	}

	closed, cost, err := h.engine.Release(c.Request.Context(), reservation.ReservationID)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "離場成功，請確認費用後付款", gin.H{
		"reservation": closed.ToResponse(),
		"cost":        cost,
	})
}

// SettleReservation 確認費用並付款
func (h *Handler) SettleReservation(c *gin.Context) {
	reservation, ok := h.ownedReservation(c)
	if !ok {
		return
	}
	var req models.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	receipt, err := h.engine.Settle(c.Request.Context(), reservation.ReservationID, *req.Cost)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "付款成功", receipt)
}

// ListMyReservations 查詢目前會員的所有預約
func (h *Handler) ListMyReservations(c *gin.Context) {
	list, err := h.engine.ListForRenter(c.Request.Context(), currentMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", reservationResponses(list))
}

func (h *Handler) ListMyActiveReservations(c *gin.Context) {
	list, err := h.engine.ActiveForRenter(c.Request.Context(), currentMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", reservationResponses(list))
}

func (h *Handler) ListMyUnsettledReservations(c *gin.Context) {
	list, err := h.engine.UnsettledForRenter(c.Request.Context(), currentMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", reservationResponses(list))
}

func (h *Handler) GetMySummary(c *gin.Context) {
	summary, err := h.engine.RenterSummary(c.Request.Context(), currentMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", summary)
}

// PurgeMyHistory 刪除目前會員已結束的預約紀錄
func (h *Handler) PurgeMyHistory(c *gin.Context) {
	deleted, err := h.engine.PurgeHistory(c.Request.Context(), currentMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "紀錄已刪除", gin.H{"deleted": deleted})
}

// PurgeAllHistory 刪除所有已結束的預約紀錄
func (h *Handler) PurgeAllHistory(c *gin.Context) {
	deleted, err := h.engine.PurgeAllHistory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "紀錄已刪除", gin.H{"deleted": deleted})
}
