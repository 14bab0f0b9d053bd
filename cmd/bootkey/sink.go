package main

import (
	"io"

	"go.uber.org/multierr"
)

// fanout copies every write to all of its writers. A failing writer does not
// stop the others; their errors are combined.
type fanout struct {
	writers []io.Writer
}

func newFanout(writers ...io.Writer) *fanout {
	return &fanout{writers: writers}
}

func (f *fanout) Write(p []byte) (int, error) {
	var err error
	for _, w := range f.writers {
		if _, werr := w.Write(p); werr != nil {
			err = multierr.Append(err, werr)
		}
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
