// amqpdump decodes a stream of AMQP 1.0 encoded values and prints each
// one with its type and encoded size.
//
// Input is read from the named file or stdin, optionally compressed
// (--compression), either as raw bytes or as hex text (--hex). Bytes are
// fed to the decoder in chunks of --chunk bytes, which exercises
// resumption across arbitrary split points. With --verify each value is
// re-encoded and compared against the input. --output cbor writes one
// CBOR record per value instead of text lines.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	amqp "github.com/zedar/go-amqp-codec"
	"github.com/zedar/go-amqp-codec/internal/buffer"
	"github.com/zedar/go-amqp-codec/internal/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// errNotCanonical is returned when --verify found a value whose input
// bytes differ from its encoding.
var errNotCanonical = errors.New("input is not canonically encoded")

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		configPath string
		hexInput   bool
		compress   string
		format     string
		chunkSize  int
		verify     bool
		logLevel   string
		maxItems   uint32
		maxAlloc   uint32
		maxDepth   uint32
	)

	flagSet := pflag.NewFlagSet("amqpdump", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvConfig+")")
	flagSet.BoolVar(&hexInput, "hex", false, "input is hex text")
	flagSet.StringVar(&compress, "compression", "", "input compression (none, gzip, zstd, lz4)")
	flagSet.StringVar(&format, "output", "", "output format (text, cbor)")
	flagSet.IntVar(&chunkSize, "chunk", 0, "bytes handed to the decoder per call")
	flagSet.BoolVar(&verify, "verify", false, "re-encode each value and compare with the input")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flagSet.Uint32Var(&maxItems, "max-items", 0, "largest accepted element count")
	flagSet.Uint32Var(&maxAlloc, "max-alloc", 0, "largest accepted allocation in bytes")
	flagSet.Uint32Var(&maxDepth, "max-depth", 0, "largest accepted nesting depth")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("hex") {
		cfg.Input.Hex = hexInput
	}
	if flagSet.Changed("compression") {
		cfg.Input.Compression = compress
	}
	if flagSet.Changed("output") {
		cfg.Output.Format = format
	}
	if flagSet.Changed("chunk") {
		cfg.Input.ChunkSize = chunkSize
	}
	if flagSet.Changed("verify") {
		cfg.Input.Verify = verify
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flagSet.Changed("max-items") {
		cfg.Decoder.MaxItemCount = maxItems
	}
	if flagSet.Changed("max-alloc") {
		cfg.Decoder.MaxAllocation = maxAlloc
	}
	if flagSet.Changed("max-depth") {
		cfg.Decoder.MaxDepth = maxDepth
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	input := stdin
	name := "stdin"
	switch rest := flagSet.Args(); len(rest) {
	case 0:
	case 1:
		f, err := os.Open(rest[0])
		if err != nil {
			return err
		}
		defer f.Close()
		input, name = f, rest[0]
	default:
		return fmt.Errorf("unexpected argument: %s", rest[1])
	}

	data, err := readInput(input, cfg.Input.Compression, cfg.Input.Hex)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	logger.Debug().Str("input", name).Int("bytes", data.Len()).Int("chunk", cfg.Input.ChunkSize).Msg("decoding")

	p, err := newPrinter(cfg.Output.Format, stdout)
	if err != nil {
		return err
	}
	return dump(cfg, logger, data, p)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := cfg.ParseLevel()
	if err != nil {
		return zerolog.Nop(), err
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// dump feeds data to a decoder in chunks and prints every value.
func dump(cfg *config.Config, logger zerolog.Logger, data *buffer.Buffer, p printer) error {
	opts := append(cfg.DecoderOptions(), amqp.DecoderLogger(logger))
	d, err := amqp.NewDecoder(nil, opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	var (
		pending   []byte // input of the current value, kept for --verify
		pos       int
		start     int
		count     int
		divergent int
	)
	for data.Len() > 0 {
		chunk, _ := data.Next(int64(cfg.Input.ChunkSize))
		for len(chunk) > 0 {
			v, n, err := d.DecodeOne(chunk)
			if cfg.Input.Verify {
				pending = append(pending, chunk[:n]...)
			}
			chunk = chunk[n:]
			pos += n
			if err != nil {
				return fmt.Errorf("value %d at offset %d: %w", count, start, err)
			}
			if v == nil {
				continue
			}

			size, err := amqp.EncodedSize(v)
			if err != nil {
				v.Destroy()
				return err
			}
			rec := record{Offset: start, Type: v.Type().String(), Size: size, Value: v.String()}

			if cfg.Input.Verify {
				ok, err := canonical(v, pending)
				if err != nil {
					v.Destroy()
					return err
				}
				if !ok {
					divergent++
					logger.Warn().Int("offset", start).Hex("input", pending).Msg("non-canonical encoding")
				}
				rec.Canonical = &ok
				pending = pending[:0]
			}
			v.Destroy()

			if err := p.print(rec); err != nil {
				return err
			}
			start = pos
			count++
		}
	}

	if d.Pending() {
		return fmt.Errorf("value %d at offset %d: %w", count, start, io.ErrUnexpectedEOF)
	}
	logger.Info().Int("values", count).Msg("done")
	if divergent > 0 {
		return fmt.Errorf("%d of %d values: %w", divergent, count, errNotCanonical)
	}
	return nil
}

// canonical reports whether input is the encoding Marshal produces for v.
func canonical(v *amqp.Value, input []byte) (bool, error) {
	encoded, err := amqp.Marshal(v)
	if err != nil {
		return false, err
	}
	return bytes.Equal(encoded, input), nil
}
