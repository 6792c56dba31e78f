package banledger

import (
	"fmt"
	"os"
	"time"
)

// acquireFileLock takes a process-exclusive lock via an O_EXCL sentinel
// file, retrying briefly before giving up. No flock-style library appears
// anywhere in the reference corpus, and a single-writer-per-process
// invariant (see history.Store) only needs this much.
func acquireFileLock(path string) (release func(), err error) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out acquiring lock %s", path)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
