package main

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// record describes one decoded value.
type record struct {
	Offset    int    `cbor:"offset"`
	Type      string `cbor:"type"`
	Size      uint64 `cbor:"size"`
	Value     string `cbor:"value"`
	Canonical *bool  `cbor:"canonical,omitempty"`
}

type printer interface {
	print(rec record) error
}

func newPrinter(format string, w io.Writer) (printer, error) {
	switch format {
	case "text":
		return textPrinter{w: w}, nil
	case "cbor":
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return cborPrinter{enc: em.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %q", format)
	}
}

type textPrinter struct {
	w io.Writer
}

func (p textPrinter) print(rec record) error {
	_, err := fmt.Fprintf(p.w, "%d: %s (%d bytes) %s\n", rec.Offset, rec.Type, rec.Size, rec.Value)
	return err
}

// cborPrinter writes one CBOR map per value using deterministic encoding.
type cborPrinter struct {
	enc *cbor.Encoder
}

func (p cborPrinter) print(rec record) error {
	return p.enc.Encode(rec)
}
