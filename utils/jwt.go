package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin  = "admin"
	RoleRenter = "renter"
)

// GenerateToken 簽發 HS256 token，claims 包含 member_id、role 與 exp
func GenerateToken(memberID int, role string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"member_id": memberID,
		"role":      role,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
