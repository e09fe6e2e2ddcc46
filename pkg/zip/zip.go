// Package zip bundles job artifacts into a single downloadable archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

type Artifact struct {
	Filename string
	Data     []byte
}

// Writer streams entries into an archive without buffering them whole.
// Filenames are deduplicated so two artifacts with the same name never
// clobber each other.
type Writer struct {
	zw   *zip.Writer
	seen map[string]int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w), seen: map[string]int{}}
}

// Add copies r into a new archive entry.
func (w *Writer) Add(filename string, r io.Reader) error {
	name := filename
	if n := w.seen[filename]; n > 0 {
		name = fmt.Sprintf("%d-%s", n, filename)
	}
	w.seen[filename]++
	entry, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("zip: create %s: %w", name, err)
	}
	if _, err := io.Copy(entry, r); err != nil {
		return fmt.Errorf("zip: write %s: %w", name, err)
	}
	return nil
}

func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("zip: close: %w", err)
	}
	return nil
}

// Archive bundles in-memory artifacts. For large payloads prefer a Writer
// over the destination stream.
func Archive(artifacts []Artifact) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	for _, artifact := range artifacts {
		if err := w.Add(artifact.Filename, bytes.NewReader(artifact.Data)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
