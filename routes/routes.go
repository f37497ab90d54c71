package routes

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"parkwise/handlers"
	"parkwise/utils"
)

func abortUnauthorized(c *gin.Context, status int, message, errMsg, code string) {
	c.JSON(status, gin.H{
		"status":  false,
		"message": message,
		"error":   errMsg,
		"code":    code,
	})
	c.Abort()
}

// AuthMiddleware 驗證 JWT token，並提取 member_id 和 role
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, http.StatusUnauthorized, "缺少 Authorization 標頭", "Authorization header is required", "ERR_NO_AUTH_HEADER")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, http.StatusUnauthorized, "無效的 Authorization 格式",
				"Authorization header must be in the format 'Bearer <token>'", "ERR_INVALID_AUTH_FORMAT")
			return
		}

		// 明確要求檢查 exp 字段
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		}, jwt.WithExpirationRequired())
		if err != nil {
			log.Printf("Token parsing error: %v", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthorized(c, http.StatusUnauthorized, "token 已過期", "Token has expired", "ERR_TOKEN_EXPIRED")
			} else {
				abortUnauthorized(c, http.StatusUnauthorized, "無效的 token", err.Error(), "ERR_INVALID_TOKEN")
			}
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			abortUnauthorized(c, http.StatusUnauthorized, "無效的 token 內容",
				"Invalid token claims or token is not valid", "ERR_INVALID_CLAIMS")
			return
		}

		memberID, ok := claims["member_id"].(float64)
		if !ok || memberID <= 0 {
			log.Printf("Missing or invalid member_id in token")
			abortUnauthorized(c, http.StatusUnauthorized, "無效的會員 ID", "Invalid member_id in token", "ERR_INVALID_MEMBER_ID")
			return
		}

		role, ok := claims["role"].(string)
		if !ok || (role != utils.RoleRenter && role != utils.RoleAdmin) {
			log.Printf("Missing or invalid role in token: %v", claims["role"])
			abortUnauthorized(c, http.StatusUnauthorized, "無效的角色", "Invalid role in token", "ERR_INVALID_ROLE")
			return
		}

		c.Set("member_id", int(memberID))
		c.Set("role", role)
		c.Next()
	}
}

// RoleMiddleware 檢查會員角色是否符合要求，admin 可訪問所有端點
func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == "" {
			abortUnauthorized(c, http.StatusUnauthorized, "無法獲取角色資訊", "Role not found in context", "ERR_ROLE_NOT_FOUND")
			return
		}

		if role == utils.RoleAdmin {
			c.Next()
			return
		}
		for _, allowedRole := range allowedRoles {
			if role == allowedRole {
				c.Next()
				return
			}
		}

		abortUnauthorized(c, http.StatusForbidden, "權限不足", "Insufficient role permissions", "ERR_INSUFFICIENT_PERMISSIONS")
	}
}

// Path 註冊所有 /v1 路由
func Path(router *gin.RouterGroup, h *handlers.Handler, secret []byte) {
	v1 := router.Group("/v1")
	v1.Use(AuthMiddleware(secret))

	lots := v1.Group("/lots")
	{
		lots.GET("", h.ListLots)
		lots.GET("/:id", h.GetLot)
		lots.GET("/:id/spots", h.ListSpots)
		lots.POST("", RoleMiddleware(utils.RoleAdmin), h.CreateLot)
		lots.PUT("/:id", RoleMiddleware(utils.RoleAdmin), h.UpdateLot)
		lots.PUT("/:id/capacity", RoleMiddleware(utils.RoleAdmin), h.ResizeLot)
		lots.DELETE("/:id", RoleMiddleware(utils.RoleAdmin), h.DeleteLot)
	}

	reservations := v1.Group("/reservations")
	{
		reservations.POST("", RoleMiddleware(utils.RoleRenter), h.ReserveSpot)
		reservations.GET("/:id", h.GetReservation)
		reservations.POST("/:id/release", h.ReleaseReservation)
		reservations.POST("/:id/settle", h.SettleReservation)
		reservations.DELETE("", RoleMiddleware(utils.RoleAdmin), h.PurgeAllHistory)
	}

	me := v1.Group("/me")
	{
		me.GET("/account", h.GetMyAccount)
		me.GET("/reservations", h.ListMyReservations)
		me.GET("/reservations/active", h.ListMyActiveReservations)
		me.GET("/reservations/unsettled", h.ListMyUnsettledReservations)
		me.GET("/reservations/summary", h.GetMySummary)
		me.DELETE("/reservations", h.PurgeMyHistory)
	}

	admin := v1.Group("", RoleMiddleware(utils.RoleAdmin))
	{
		admin.GET("/earnings", h.GetEarnings)
		admin.GET("/audit", h.RunAudit)
		admin.POST("/accounts", h.OpenAccount)
		admin.GET("/accounts/:id", h.GetAccount)
		admin.POST("/accounts/:id/top-up", h.TopUp)
	}
}
