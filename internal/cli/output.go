package cli

import (
	"io"
	"os"
	"path/filepath"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// openOutput returns a writer for path, or stdout if path is "" or "-".
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// writeOutput writes data to path (see openOutput).
func writeOutput(path string, data []byte) error {
	out, err := openOutput(path)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
