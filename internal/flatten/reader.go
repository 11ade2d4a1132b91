package flatten

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// OpenFile opens path, decompressing .gz, .bz2, .zst and .xz files by suffix.
// A leading UTF-8 or UTF-16 byte order mark is consumed and the content is
// decoded to UTF-8.
func OpenFile(path string) (io.ReadCloser, error) {
	file, err := os.Open(path) //nolint:gosec // paths come from the user's configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader, cleanup, err := decompress(file, path)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	decoded := transform.NewReader(reader, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	return &readCloser{Reader: decoded, close: func() error {
		cleanupErr := cleanup()
		if closeErr := file.Close(); closeErr != nil && cleanupErr == nil {
			cleanupErr = closeErr
		}

		return cleanupErr
	}}, nil
}

func decompress(r io.Reader, path string) (io.Reader, func() error, error) {
	noop := func() error { return nil }
	lower := strings.ToLower(path)

	switch {
	case strings.HasSuffix(lower, ".gz"):
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}

		return gzReader, gzReader.Close, nil
	case strings.HasSuffix(lower, ".bz2"):
		return bzip2.NewReader(r), noop, nil
	case strings.HasSuffix(lower, ".xz"):
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}

		return xzReader, noop, nil
	case strings.HasSuffix(lower, ".zst"):
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}

		return decoder, func() error {
			decoder.Close()
			return nil
		}, nil
	default:
		return r, noop, nil
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error {
	return r.close()
}
