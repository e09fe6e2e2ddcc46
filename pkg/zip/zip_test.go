package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveRoundTrip(t *testing.T) {
	payload, err := Archive([]Artifact{
		{Filename: "out.mp4", Data: []byte("video")},
		{Filename: "out.mp4", Data: []byte("second")},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	if zr.File[0].Name != "out.mp4" || zr.File[1].Name != "1-out.mp4" {
		t.Fatalf("names = %q, %q", zr.File[0].Name, zr.File[1].Name)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" {
		t.Fatalf("data = %q", data)
	}
}

func TestArchiveEmpty(t *testing.T) {
	payload, err := Archive(nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(zr.File) != 0 {
		t.Fatalf("entries = %d, want 0", len(zr.File))
	}
}

func TestWriterStreamsEntries(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	if err := w.Add("a.png", bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.Add("a.png", bytes.NewReader([]byte("dup"))); err != nil {
		t.Fatalf("add dup: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	if zr.File[0].Name != "a.png" || zr.File[1].Name != "1-a.png" {
		t.Fatalf("names = %q, %q", zr.File[0].Name, zr.File[1].Name)
	}
}
