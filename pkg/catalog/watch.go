package catalog

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog when the file is changed by another writer
// and calls onReload after each reload. It returns when ctx is done.
func (c *Catalog) Watch(ctx context.Context, onReload func()) error {
	if c.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: atomic replaces swap the inode under the file.
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(c.path)
			if err != nil {
				continue
			}
			if c.reload(data) {
				c.logger.Info("catalog reloaded", "path", c.path)
				if onReload != nil {
					onReload()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("catalog watch", "err", err)
		}
	}
}
