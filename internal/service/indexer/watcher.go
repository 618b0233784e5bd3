package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/service/setting"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// watchDebounce CI 通常分多次写入构建信息，同一目录的事件合并后再入队
const watchDebounce = 2 * time.Second

// FolderWatcher 监听周期目录，任务目录下的构建信息文件写入后立即入队
// 轮询仍然是兜底机制，监听只是降低索引延迟
type FolderWatcher struct {
	planner        *Planner
	settingService *setting.SettingService
	queue          Queue
	watcher        *fsnotify.Watcher

	mu      sync.Mutex
	cycles  map[string]watchedCycle // 周期目录 -> 周期
	pending map[string]*time.Timer  // 任务目录 -> 防抖定时器
	done    chan struct{}
}

// NewFolderWatcher 创建目录监听器
func NewFolderWatcher(planner *Planner, settingService *setting.SettingService, queue Queue) (*FolderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create folder watcher: %w", err)
	}
	return &FolderWatcher{
		planner:        planner,
		settingService: settingService,
		queue:          queue,
		watcher:        watcher,
		cycles:         make(map[string]watchedCycle),
		pending:        make(map[string]*time.Timer),
		done:           make(chan struct{}),
	}, nil
}

// Start 监听全部已存在的周期目录及其任务目录
func (w *FolderWatcher) Start(ctx context.Context) error {
	cycles, err := w.planner.cycles(ctx)
	if err != nil {
		return err
	}
	for _, wc := range cycles {
		if _, err := os.Stat(wc.folder); err != nil {
			continue
		}
		if err := w.watcher.Add(wc.folder); err != nil {
			logger.LogIndexation(logrus.WarnLevel, "cannot watch cycle folder", map[string]interface{}{
				"operation": "watch_folders",
				"folder":    wc.folder,
				"error":     err.Error(),
			})
			continue
		}
		w.cycles[filepath.Clean(wc.folder)] = wc
		for _, job := range subFolders(wc.folder) {
			_ = w.watcher.Add(job)
		}
	}

	go w.loop(ctx)
	logger.LogSystemEvent("indexer", "folder_watcher_started", "raw folder watcher started", logrus.InfoLevel, map[string]interface{}{
		"cycles": len(w.cycles),
	})
	return nil
}

// Stop 停止监听
func (w *FolderWatcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	w.mu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *FolderWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.LogIndexation(logrus.WarnLevel, "folder watcher error", map[string]interface{}{
				"operation": "watch_folders",
				"error":     err.Error(),
			})
		}
	}
}

func (w *FolderWatcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	path := filepath.Clean(event.Name)
	parent := filepath.Dir(path)

	// 周期目录下新建的任务目录
	if wc, ok := w.cycles[parent]; ok {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			_ = w.watcher.Add(path)
			w.schedule(ctx, wc, path)
		}
		return
	}

	// 任务目录下的构建信息文件
	wc, ok := w.cycles[filepath.Dir(parent)]
	if !ok {
		return
	}
	settings, err := w.settingService.Load(ctx, wc.project.ID)
	if err != nil {
		return
	}
	if filepath.Base(path) == filepath.Base(settings.Get(setting.BuildInformationPath)) {
		w.schedule(ctx, wc, parent)
	}
}

// schedule 防抖后入队
func (w *FolderWatcher) schedule(ctx context.Context, wc watchedCycle, jobFolder string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[jobFolder]; ok {
		timer.Reset(watchDebounce)
		return
	}
	w.pending[jobFolder] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, jobFolder)
		w.mu.Unlock()

		indexation := &execmodel.PlannedIndexation{
			ProjectID:       wc.project.ID,
			ProjectCode:     wc.project.Code,
			CycleDefinition: wc.cycle,
			RawFolder:       jobFolder,
		}
		if err := w.queue.Push(ctx, indexation); err != nil {
			logger.LogIndexation(logrus.WarnLevel, "cannot enqueue watched job folder, left to poll scheduler", map[string]interface{}{
				"operation": "watch_folders",
				"folder":    jobFolder,
				"error":     err.Error(),
			})
		}
	})
}
