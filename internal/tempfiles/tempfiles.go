package tempfiles

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

// Create makes a temp file in the provided directory, creating the directory if needed.
func Create(dir string, pattern string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// NewDeleteOnClose wraps an open file and removes it when the reader is closed.
func NewDeleteOnClose(file *os.File) io.ReadCloser {
	return &deleteOnCloseReadCloser{
		file: file,
		path: file.Name(),
	}
}

type deleteOnCloseReadCloser struct {
	file *os.File
	path string
	once sync.Once
}

func (d *deleteOnCloseReadCloser) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

func (d *deleteOnCloseReadCloser) Close() error {
	var closeErr error
	var removeErr error
	d.once.Do(func() {
		closeErr = d.file.Close()
		if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
			removeErr = err
		}
	})
	if closeErr != nil {
		return closeErr
	}
	return removeErr
}

// TooLargeError reports an upload that exceeded its size limit.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds maximum size of %d bytes", e.Limit)
}

// Spooled is an upload copied to a temp file, rewound and ready to read.
type Spooled struct {
	File   *os.File
	Size   int64
	SHA256 string
}

// Close closes and removes the temp file.
func (s *Spooled) Close() error {
	closeErr := s.File.Close()
	if err := os.Remove(s.File.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}

// Spool copies at most maxSize bytes of r to a temp file in dir, hashing as it
// goes. It fails with *TooLargeError when r holds more than maxSize bytes. A
// non-positive maxSize disables the limit.
func Spool(dir, pattern string, r io.Reader, maxSize int64) (*Spooled, error) {
	tmp, err := Create(dir, pattern)
	if err != nil {
		return nil, err
	}
	spooled := &Spooled{File: tmp}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		_ = spooled.Close()
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if maxSize > 0 && n > maxSize {
		_ = spooled.Close()
		return nil, &TooLargeError{Limit: maxSize}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = spooled.Close()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	spooled.Size = n
	spooled.SHA256 = hex.EncodeToString(hasher.Sum(nil))
	return spooled, nil
}
