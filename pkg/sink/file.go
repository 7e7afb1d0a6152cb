package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/modoterra/jukedash/pkg/logpipe"
)

// File appends JSONL records to a file, gzip-compressed when the path ends
// in .gz. Each Write is flushed so a crash loses at most one batch.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
	gz   *gzip.Writer
	bw   *bufio.Writer
	enc  *json.Encoder
}

// NewFile opens path for appending.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &File{path: path, f: f}
	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		s.gz = gzip.NewWriter(f)
		w = s.gz
	}
	s.bw = bufio.NewWriter(w)
	s.enc = json.NewEncoder(s.bw)
	return s, nil
}

func (s *File) Name() string { return "file" }

func (s *File) Write(ctx context.Context, entries []logpipe.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("write %s: sink closed", s.path)
	}
	for _, e := range entries {
		if err := s.enc.Encode(NewRecord(e)); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := s.bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if s.gz != nil {
		if err := s.gz.Flush(); err != nil {
			return fmt.Errorf("write %s: %w", s.path, err)
		}
	}
	return nil
}

func (s *File) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.bw.Flush()
	if s.gz != nil {
		if cerr := s.gz.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}
