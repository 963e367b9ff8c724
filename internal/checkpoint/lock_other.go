//go:build !unix

package checkpoint

import "sync"

var dirLock sync.Mutex

// lockDir only serialises within this process on platforms without flock.
func lockDir(string) (func(), error) {
	dirLock.Lock()
	return dirLock.Unlock, nil
}
