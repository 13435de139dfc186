package clipboard

import (
	"sync"

	"golang.design/x/clipboard"
)

var writeMu sync.Mutex

// Init must be called once on the main goroutine before any Write.
func Init() error {
	return clipboard.Init()
}

// Write puts recognized text on the system clipboard. Mutex-guarded so
// overlapping recognition results cannot interleave.
func Write(text string) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
