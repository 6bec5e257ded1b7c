package asyncbufio

import (
	"bytes"
	"testing"
	"time"
)

func TestWriterOrdersAndFlushes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 16, time.Hour) // interval long enough to never fire
	if _, err := w.WriteString("alpha,"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("beta,")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteString("gamma"); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "alpha,beta,gamma" {
		t.Errorf("buffer holds %q", got)
	}
	w.Close()
}

func TestWriterCopiesData(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 16, time.Hour)
	p := []byte("original")
	if _, err := w.Write(p); err != nil {
		t.Fatal(err)
	}
	copy(p, "CLOBBERED")
	w.Flush()
	w.Close()
	if got := buf.String(); got != "original" {
		t.Errorf("buffer holds %q, want the bytes as written", got)
	}
}

func TestWriterCloseFlushes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 16, time.Hour)
	w.WriteString("pending")
	w.Close()
	if got := buf.String(); got != "pending" {
		t.Errorf("buffer holds %q after Close", got)
	}
}
