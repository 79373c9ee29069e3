package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/zedar/go-amqp-codec/internal/buffer"
)

// decompress wraps r with a reader for the named compression.
func decompress(r io.Reader, compression string) (io.ReadCloser, error) {
	switch compression {
	case "none":
		return io.NopCloser(r), nil
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	case "lz4":
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown compression: %q", compression)
	}
}

// readInput reads all of r, decompressing it and decoding hex text when
// asked to.
func readInput(r io.Reader, compression string, hexText bool) (*buffer.Buffer, error) {
	rc, err := decompress(r, compression)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf buffer.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, err
	}
	if !hexText {
		return &buf, nil
	}

	text := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, string(buf.Bytes()))
	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, err
	}
	return buffer.New(raw), nil
}
