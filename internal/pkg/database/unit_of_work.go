package database

import (
	"context"
	"fmt"

	"aramaster/internal/pkg/logger"

	"gorm.io/gorm"
)

// AfterCommit 挂在一次事务上的提交后钩子列表
// 事务回滚时钩子被丢弃；提交后按注册顺序执行，单个钩子的错误或 panic 只记录日志
type AfterCommit struct {
	hooks []namedHook
}

type namedHook struct {
	name string
	fn   func(ctx context.Context) error
}

// Register 注册提交后钩子
func (a *AfterCommit) Register(name string, fn func(ctx context.Context) error) {
	if a == nil || fn == nil {
		return
	}
	a.hooks = append(a.hooks, namedHook{name: name, fn: fn})
}

// Len 已注册钩子数量
func (a *AfterCommit) Len() int {
	if a == nil {
		return 0
	}
	return len(a.hooks)
}

func (a *AfterCommit) run(ctx context.Context) {
	for _, hook := range a.hooks {
		runHook(ctx, hook)
	}
}

func runHook(ctx context.Context, hook namedHook) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogError(fmt.Errorf("after-commit hook panic: %v", r), "", "", "", "pkg.database.after_commit", hook.name, map[string]interface{}{
				"operation": "after_commit",
				"hook":      hook.name,
			})
		}
	}()
	if err := hook.fn(ctx); err != nil {
		logger.LogError(err, "", "", "", "pkg.database.after_commit", hook.name, map[string]interface{}{
			"operation": "after_commit",
			"hook":      hook.name,
		})
	}
}

// RunInTransaction 在一个事务中执行 fn，提交成功后执行 fn 注册的钩子
// fn 内的所有读写都必须使用传入的 tx
func RunInTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB, hooks *AfterCommit) error) error {
	hooks := &AfterCommit{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, hooks)
	})
	if err != nil {
		return err
	}
	hooks.run(ctx)
	return nil
}
