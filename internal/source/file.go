package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/jobfeed/jobfeed/internal/model"
)

const maxLineBytes = 4 * 1024 * 1024

// FileAdapter reads a JSON lines export, one posting per line, in file order. Blank lines are skipped.
type FileAdapter struct {
	name    string
	company string
	path    string
}

func NewFileAdapter(name string, company string, path string) *FileAdapter {
	return &FileAdapter{name: name, company: company, path: path}
}

func (a *FileAdapter) Name() string    { return a.name }
func (a *FileAdapter) Company() string { return a.company }

func (a *FileAdapter) Open(_ context.Context) (Stream, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &fileStream{file: f, scanner: scanner}, nil
}

type fileStream struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

func (s *fileStream) Next(ctx context.Context) (*model.RawPosting, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, errors.WithStack(err)
			}
			return nil, io.EOF
		}
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var raw model.RawPosting
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, errors.Wrapf(err, "line %d", s.line)
		}
		return &raw, nil
	}
}

func (s *fileStream) Close() error {
	return s.file.Close()
}
