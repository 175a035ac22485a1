package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"MagicDJ/core/session"
	"MagicDJ/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听导入目录，自动导入投放进来的音轨配置文件。
// 成功的文件重命名为 .imported，校验失败的重命名为 .rejected，
// 不会反复处理同一个文件。
type Watcher struct {
	dir     string
	store   *session.Store
	watcher *fsnotify.Watcher
}

// New 创建导入目录监听器
func New(dir string, store *session.Store) *Watcher {
	return &Watcher{dir: dir, store: store}
}

// Start 开始监听，目录不存在时自动创建。ctx取消后停止。
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	logger.Info("开始监听导入目录", logger.String("dir", w.dir))

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			// 等写入方完成落盘
			time.Sleep(200 * time.Millisecond)
			w.importFile(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("导入目录监听错误", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("读取导入文件失败",
			logger.String("file", filepath.Base(path)),
			logger.ErrorField(err))
		return
	}

	count, err := w.store.ImportTracks(ctx, data)
	if err != nil {
		if errors.Is(err, session.ErrValidation) {
			logger.Warn("导入文件校验失败",
				logger.String("file", filepath.Base(path)),
				logger.ErrorField(err))
			w.markDone(path, ".rejected")
			return
		}
		logger.Error("导入文件处理失败",
			logger.String("file", filepath.Base(path)),
			logger.ErrorField(err))
		return
	}

	logger.Info("导入文件处理完成",
		logger.String("file", filepath.Base(path)),
		logger.Int("tracks", count))
	w.markDone(path, ".imported")
}

func (w *Watcher) markDone(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		logger.Warn("重命名已处理的导入文件失败",
			logger.String("file", filepath.Base(path)),
			logger.ErrorField(err))
	}
}
