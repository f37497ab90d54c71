package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parkwise/services"
	"parkwise/utils"
)

// Handler 持有所有 HTTP 端點需要的服務
type Handler struct {
	lots    *services.LotService
	engine  *services.ReservationEngine
	ledger  *services.Ledger
	auditor *services.Auditor
}

func New(lots *services.LotService, engine *services.ReservationEngine, ledger *services.Ledger, auditor *services.Auditor) *Handler {
	return &Handler{lots: lots, engine: engine, ledger: ledger, auditor: auditor}
}

// parseID 解析路徑參數，失敗時直接回應 400
func parseID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		log.Printf("Invalid %s: %s", name, c.Param(name))
		ErrorResponse(c, http.StatusBadRequest, "無效的 ID", "invalid "+name, "ERR_INVALID_ID")
		return 0, false
	}
	return id, true
}

func currentMember(c *gin.Context) int {
	return c.GetInt("member_id")
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == utils.RoleAdmin
}

func bindError(c *gin.Context, err error) {
	log.Printf("Invalid input data: %v", err)
	ErrorResponse(c, http.StatusBadRequest, "無效的輸入資料", err.Error(), "ERR_INVALID_INPUT")
}
