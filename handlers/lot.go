package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkwise/models"
	"parkwise/services"
)

func lotResponse(s services.LotSummary) models.LotResponse {
	return s.Lot.ToResponse(s.Occupied, s.Available)
}

// CreateLot 新增停車場並建立車位
func (h *Handler) CreateLot(c *gin.Context) {
	var req models.CreateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	lot, err := h.lots.CreateLot(c.Request.Context(), services.LotInput{
		Name:     req.Name,
		Address:  req.Address,
		Pincode:  req.Pincode,
		Price:    req.Price,
		Capacity: req.MaxSpots,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "停車場建立成功", lot.ToResponse(0, lot.Capacity))
}

// UpdateLot 更新停車場資料，可同時調整車位數
func (h *Handler) UpdateLot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	_, outcome, err := h.lots.EditLot(c.Request.Context(), id, services.LotUpdate{
		Name:     req.Name,
		Address:  req.Address,
		Pincode:  req.Pincode,
		Price:    req.Price,
		Capacity: req.MaxSpots,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.lots.GetLot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "停車場更新成功", gin.H{
		"lot":    lotResponse(*summary),
		"resize": outcome,
	})
}

// ResizeLot 調整停車場車位數
func (h *Handler) ResizeLot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req models.ResizeLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	outcome, err := h.lots.Resize(c.Request.Context(), id, *req.MaxSpots)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "車位數調整成功", outcome)
}

// DeleteLot 刪除停車場及其所有車位
func (h *Handler) DeleteLot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	outcome, err := h.lots.DeleteLot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "停車場刪除成功", outcome)
}

func (h *Handler) ListLots(c *gin.Context) {
	summaries, err := h.lots.ListLots(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	responses := make([]models.LotResponse, len(summaries))
	for i, s := range summaries {
		responses[i] = lotResponse(s)
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", responses)
}

func (h *Handler) GetLot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	summary, err := h.lots.GetLot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", lotResponse(*summary))
}

// ListSpots 查詢停車場內的車位狀態
func (h *Handler) ListSpots(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	spots, err := h.lots.ListSpots(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if spots == nil {
		spots = []models.Spot{}
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", spots)
}

// GetEarnings 已付款預約的總收入
func (h *Handler) GetEarnings(c *gin.Context) {
	total, err := h.lots.Earnings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", gin.H{"earnings": total})
}

// RunAudit 立即執行一次占用一致性檢查
func (h *Handler) RunAudit(c *gin.Context) {
	report, err := h.auditor.Run(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "檢查完成", report)
}
