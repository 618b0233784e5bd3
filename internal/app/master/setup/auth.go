package setup

import (
	"aramaster/internal/app/master/middleware"
	"aramaster/internal/config"
	authPkg "aramaster/internal/pkg/auth"
	"aramaster/internal/pkg/logger"
)

// BuildMiddlewareManager 构建认证工具和中间件管理器
// 运维调用方持有 aractl token 签发的 JWT，CI 持有 API 密钥(配置中只保存 argon2 哈希)
func BuildMiddlewareManager(cfg *config.Config) *middleware.MiddlewareManager {
	jwtManager := authPkg.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.Security.JWT.AccessTokenExpire)
	apiKeys := authPkg.NewAPIKeyVerifier(cfg.Security.Auth.APIKeyHashes)

	logger.WithFields(map[string]interface{}{
		"path":      "internal.app.master.setup.auth.BuildMiddlewareManager",
		"operation": "setup",
		"func_name": "setup.auth.BuildMiddlewareManager",
		"api_keys":  len(cfg.Security.Auth.APIKeyHashes),
	}).Info("认证中间件构建完成")

	return middleware.NewMiddlewareManager(jwtManager, apiKeys, &cfg.Security)
}
