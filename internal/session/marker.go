package session

import (
	"os"
	"time"
)

// touchMarker creates the stop marker or refreshes its timestamp.
func touchMarker(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// removeMarker deletes the stop marker; failures are ignored.
func removeMarker(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
