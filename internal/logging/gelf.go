package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfWriter connects a GELF UDP writer for shipping log records to
// Graylog. The returned writer wraps each write in a GELF message.
func NewGelfWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("gelf writer for %s: %w", addr, err)
	}
	return w, nil
}
