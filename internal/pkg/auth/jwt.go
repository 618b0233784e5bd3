/**
 * 工具类:JWT工具
 * @author: sun977
 * @date: 2025.08.29
 * @description: 运维令牌的签发与校验，令牌由 aractl token 签发，只携带主体与角色
 * @func:
 * 	1.签发令牌
 * 	2.校验令牌
 */

package auth

import (
	"errors"
	"fmt"
	"time"

	"aramaster/internal/model/system"

	"github.com/golang-jwt/jwt/v5" // 引入jwt包
)

// 角色
const (
	RoleAdmin   = "admin"   // 全部接口
	RoleIndexer = "indexer" // 触发索引与读取(CI 使用)
	RoleReader  = "reader"  // 只读
)

// IsValidRole 检查角色是否合法
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleIndexer, RoleReader:
		return true
	}
	return false
}

// Claims JWT声明结构
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey, issuer string, ttl time.Duration) *JWTManager {
	if issuer == "" {
		issuer = "ara-master"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		ttl:       ttl,
	}
}

// GenerateToken 签发令牌，返回令牌及其过期时间
func (j *JWTManager) GenerateToken(subject, role string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, system.NewValidationError("subject", "subject is required")
	}
	if !IsValidRole(role) {
		return "", time.Time{}, system.NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}
	now := time.Now()
	expiresAt := now.Add(j.ttl)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        generateJTI(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	return signed, expiresAt, err
}

// ValidateToken 校验令牌
// 过期返回 system.ErrTokenExpired，其余情况返回 system.ErrTokenInvalid
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(j.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, system.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", system.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !IsValidRole(claims.Role) {
		return nil, system.ErrTokenInvalid
	}
	return claims, nil
}

// ExtractTokenFromHeader 从Authorization头中提取令牌
func ExtractTokenFromHeader(authHeader string) string {
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}

// generateJTI 生成JWT ID
func generateJTI(now time.Time) string {
	// 使用纳秒级时间戳确保唯一性
	return now.Format("20060102150405") + "-" + fmt.Sprintf("%09d", now.Nanosecond())
}
