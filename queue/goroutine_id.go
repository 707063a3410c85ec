package queue

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineID extracts the numeric id from the calling goroutine's
// stack trace header ("goroutine 123 [running]: ..."). Go intentionally
// does not expose this as a stable API; this is strictly a diagnostic used
// to bind a Queue to its runner goroutine for InCurrentThread assertions.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	b = bytes.TrimPrefix(b, []byte(prefix))
	idx := bytes.IndexByte(b, ' ')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:idx]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
