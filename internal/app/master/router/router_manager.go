/**
 * 路由:路由管理器
 * @author: sun977
 * @date: 2025.10.10
 * @description: 路由管理器，包含Router结构体、NewRouter函数和SetupRoutes主函数
 * @func:
 */
package router

import (
	"aramaster/internal/app/master/middleware"
	"aramaster/internal/app/master/setup"
	"aramaster/internal/config"
	executionHandler "aramaster/internal/handler/execution"
	problemHandler "aramaster/internal/handler/problem"
	projectHandler "aramaster/internal/handler/project"
	"aramaster/internal/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Router 路由管理器
type Router struct {
	config            *config.Config
	engine            *gin.Engine
	middlewareManager *middleware.MiddlewareManager
	db                *gorm.DB      // 就绪检查
	redisClient       *redis.Client // 就绪检查，未启用时为 nil

	projectHandler   *projectHandler.ProjectHandler
	problemHandler   *problemHandler.ProblemHandler
	executionHandler *executionHandler.ExecutionHandler
}

// NewRouter 创建路由管理器实例，模块由 setup 层装配好后传入
func NewRouter(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, middlewareManager *middleware.MiddlewareManager, core *setup.CoreModule, execution *setup.ExecutionModule) *Router {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	return &Router{
		config:            cfg,
		engine:            gin.New(),
		middlewareManager: middlewareManager,
		db:                db,
		redisClient:       redisClient,
		projectHandler:    core.ProjectHandler,
		problemHandler:    core.ProblemHandler,
		executionHandler:  execution.ExecutionHandler,
	}
}

// SetupRoutes 设置全局中间件和路由
func (r *Router) SetupRoutes() {
	// 1) 全局中间件注册
	r.registerGlobalMiddleware()

	// 2) 路由注册
	r.registerRoutes()
}

// GetEngine 获取Gin引擎实例
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// registerGlobalMiddleware 注册全局中间件
// 请求ID必须在日志之前，日志中间件要读取它
func (r *Router) registerGlobalMiddleware() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.middlewareManager.GinRequestIDMiddleware())
	r.engine.Use(r.middlewareManager.GinCORSMiddleware())
	r.engine.Use(r.middlewareManager.GinSecurityHeadersMiddleware())
	r.engine.Use(r.middlewareManager.GinLoggingMiddleware())
	r.engine.Use(r.middlewareManager.GinRateLimitMiddleware())

	logger.WithFields(map[string]interface{}{
		"path":      "router_manager.registerGlobalMiddleware",
		"operation": "register_global_middleware",
		"func_name": "router.registerGlobalMiddleware",
	}).Info("全局中间件注册完成")
}

// registerRoutes 注册路由
func (r *Router) registerRoutes() {
	api := r.engine.Group("/api")
	v1 := api.Group("/v1")

	// 项目下的全部接口都需要认证
	projects := v1.Group("/projects")
	projects.Use(r.middlewareManager.GinAuthMiddleware())

	r.setupProjectRoutes(projects)
	r.setupExecutionRoutes(projects)
	r.setupProblemRoutes(projects)
	// 健康检查路由
	r.setupHealthRoutes(api)

	logger.WithFields(map[string]interface{}{
		"path":      "router_manager.registerRoutes",
		"operation": "register_routes",
		"func_name": "router.registerRoutes",
		"routes":    len(r.engine.Routes()),
	}).Info("路由注册完成")
}
