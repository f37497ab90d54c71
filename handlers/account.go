package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkwise/models"
)

// OpenAccount 建立會員帳戶
func (h *Handler) OpenAccount(c *gin.Context) {
	var req models.OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	account, err := h.ledger.OpenAccount(c.Request.Context(), req.AccountID, req.Name, req.Balance)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "帳戶建立成功", account)
}

// TopUp 管理員為帳戶儲值
func (h *Handler) TopUp(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req models.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	account, err := h.ledger.TopUp(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "儲值成功", account)
}

func (h *Handler) GetAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	account, err := h.ledger.Account(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", account)
}

// GetMyAccount 查詢目前會員的餘額
func (h *Handler) GetMyAccount(c *gin.Context) {
	account, err := h.ledger.Account(c.Request.Context(), currentMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", account)
}
