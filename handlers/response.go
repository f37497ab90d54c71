package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"parkwise/services"
)

// APIResponse 定義統一的 API 回應結構
type APIResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"` // omitempty 表示如果為空則不顯示
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse 返回成功的回應
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Status:  true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 返回失敗的回應
func ErrorResponse(c *gin.Context, statusCode int, message string, err string, code string) {
	c.JSON(statusCode, APIResponse{
		Status:  false,
		Message: message,
		Error:   err,
		Code:    code,
	})
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// 較細的錯誤必須排在包裝它的錯誤之前
var errorMappings = []errorMapping{
	{services.ErrNotFound, http.StatusNotFound, "ERR_NOT_FOUND", "查無資料"},
	{services.ErrNoAvailability, http.StatusConflict, "ERR_NO_AVAILABILITY", "目前沒有空車位，請稍後再試"},
	{services.ErrInvalidState, http.StatusConflict, "ERR_INVALID_STATE", "車位狀態已變更，請重試"},
	{services.ErrAboveCeiling, http.StatusConflict, "ERR_ABOVE_CEILING", "車位數超過停車場上限"},
	{services.ErrTooManyOccupied, http.StatusConflict, "ERR_TOO_MANY_OCCUPIED", "占用中的車位過多，無法縮減"},
	{services.ErrLotOccupied, http.StatusConflict, "ERR_LOT_OCCUPIED", "停車場仍有占用中的車位"},
	{services.ErrCapacity, http.StatusConflict, "ERR_CAPACITY", "車位數調整失敗"},
	{services.ErrInsufficientFunds, http.StatusPaymentRequired, "ERR_INSUFFICIENT_FUNDS", "餘額不足，請儲值後再付款"},
	{services.ErrInvalidDuration, http.StatusInternalServerError, "ERR_INVALID_DURATION", "預約時間資料異常"},
	{services.ErrAlreadyClosed, http.StatusConflict, "ERR_ALREADY_CLOSED", "預約已結束"},
	{services.ErrAlreadySettled, http.StatusConflict, "ERR_ALREADY_SETTLED", "預約已付款"},
	{services.ErrInvalidAmount, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "金額不正確"},
	{services.ErrInvalidInput, http.StatusBadRequest, "ERR_INVALID_INPUT", "無效的輸入資料"},
	{services.ErrAlreadyExists, http.StatusConflict, "ERR_ALREADY_EXISTS", "資料已存在"},
}

// respondError 將服務層錯誤轉為對應的 HTTP 狀態碼
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			ErrorResponse(c, m.status, m.message, err.Error(), m.code)
			return
		}
	}
	log.Printf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err)
	ErrorResponse(c, http.StatusInternalServerError, "伺服器內部錯誤", err.Error(), "ERR_INTERNAL")
}
