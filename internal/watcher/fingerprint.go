package watcher

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

func fingerprintFile(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, file); err != nil {
		return 0, err
	}
	return digest.Sum64(), nil
}

// contentChanged reports whether path differs from the fingerprint recorded
// for it and stores the new one. Files that cannot be read count as changed.
func (watcher *Watcher) contentChanged(path string) bool {
	sum, err := fingerprintFile(path)

	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	entry := watcher.files[path]
	if entry == nil {
		return false
	}
	if err != nil {
		entry.hasFingerprint = false
		return true
	}
	changed := !entry.hasFingerprint || entry.fingerprint != sum
	entry.fingerprint = sum
	entry.hasFingerprint = true
	return changed
}
