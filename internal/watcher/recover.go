package watcher

import (
	"os"
	"time"
)

func (watcher *Watcher) recoverLoop() {
	ticker := time.NewTicker(watcher.recoverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			watcher.recoverLostDirs()
		case <-watcher.done:
			return
		}
	}
}

// recoverLostDirs re-registers directories that were removed and have since
// been recreated, such as a package directory replaced by a branch checkout.
func (watcher *Watcher) recoverLostDirs() {
	if watcher == nil {
		return
	}

	watcher.mutex.Lock()
	if watcher.closed || len(watcher.lostDirs) == 0 {
		watcher.mutex.Unlock()
		return
	}
	candidates := make([]string, 0, len(watcher.lostDirs))
	for dir := range watcher.lostDirs {
		candidates = append(candidates, dir)
	}
	notify := watcher.watcher
	watcher.mutex.Unlock()

	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || notify == nil {
			continue
		}
		if err := notify.Add(dir); err != nil {
			watcher.logWarn("watch recover failed", map[string]string{
				"path":  dir,
				"error": err.Error(),
			})
			continue
		}

		watcher.mutex.Lock()
		delete(watcher.lostDirs, dir)
		activeCount := watcher.activeWatches
		watcher.mutex.Unlock()
		watcher.logDebug("watch recovered", dir, activeCount)
	}
}
