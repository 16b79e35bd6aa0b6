package logio

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/crashmonkey-go/crashmonkey/diskwrite"
)

// Save writes log to path. When compress is true the file is zstd
// compressed, the way a large recorded log benefits from on persist
// (the teacher compresses cluster payloads the same way in compress.go).
func Save(path string, log []diskwrite.DiskWrite, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("logio: create %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("logio: new zstd writer: %w", err)
		}
		w = enc
	}

	if err := diskwrite.WriteLog(w, log); err != nil {
		if enc != nil {
			enc.Close()
		}
		return fmt.Errorf("logio: write log to %s: %w", path, err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("logio: close zstd writer for %s: %w", path, err)
		}
	}
	return nil
}

// Load reads a log previously written by Save. compress must match the
// value passed to Save.
func Load(path string, compress bool) ([]diskwrite.DiskWrite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("logio: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	var dec *zstd.Decoder
	if compress {
		dec, err = zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("logio: new zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	log, err := diskwrite.ReadLog(r)
	if err != nil {
		return nil, fmt.Errorf("logio: read log from %s: %w", path, err)
	}
	return log, nil
}
