package history

import (
	"fmt"
	"os"
	"time"
)

// acquireFileLock takes a process-exclusive lock via an O_EXCL sentinel
// file, retrying briefly before giving up. Same shape as
// banledger.acquireFileLock — the distilled spec's design note asks that an
// on-disk schema change touch exactly one place per table, not that the two
// tables share a lock implementation.
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
