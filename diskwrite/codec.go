package diskwrite

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic identifies a crashmonkey disk-write log file: "CMLG".
const Magic = 0x434d4c47

// CodecVersion is the current on-disk log format version.
const CodecVersion = 1

var (
	// ErrInvalidMagic is returned when a log file does not start with Magic.
	ErrInvalidMagic = errors.New("diskwrite: invalid log magic")
	// ErrUnsupportedVersion is returned when a log file's version is newer
	// than this codec understands.
	ErrUnsupportedVersion = errors.New("diskwrite: unsupported log version")
)

// recordHeaderSize is the fixed-size prefix of one serialized DiskWrite:
// flags(4) + sector(8) + size(4) + payloadLen(4).
const recordHeaderSize = 4 + 8 + 4 + 4

// WriteLog serializes a full log as a length-prefixed DiskWrite stream,
// preceded by a magic/version header, to w. It returns the first error
// encountered; the destination is left in a partially-written state on
// error, matching the teacher's fail-fast I/O style.
func WriteLog(w io.Writer, log []DiskWrite) error {
	bw := bufio.NewWriter(w)

	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[0:4], Magic)
	hdr[4] = CodecVersion
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("diskwrite: failed to write log header: %w", err)
	}

	for i, rec := range log {
		if err := writeRecord(bw, rec); err != nil {
			return fmt.Errorf("diskwrite: failed to write record %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("diskwrite: failed to flush log: %w", err)
	}
	return nil
}

func writeRecord(w io.Writer, rec DiskWrite) error {
	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(rec.Flags))
	binary.BigEndian.PutUint64(hdr[4:12], rec.Sector)
	binary.BigEndian.PutUint32(hdr[12:16], rec.Size)
	binary.BigEndian.PutUint32(hdr[16:20], uint32(len(rec.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(rec.Payload) > 0 {
		if _, err := w.Write(rec.Payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadLog deserializes a log written by WriteLog, reading until EOF.
func ReadLog(r io.Reader) ([]DiskWrite, error) {
	br := bufio.NewReader(r)

	var hdr [5]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("diskwrite: failed to read log header: %w", err)
	}
	if binary.BigEndian.Uint32(hdr[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if hdr[4] > CodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr[4])
	}

	var log []DiskWrite
	for {
		rec, err := readRecord(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("diskwrite: failed to read record %d: %w", len(log), err)
		}
		log = append(log, rec)
	}
	return log, nil
}

func readRecord(r io.Reader) (DiskWrite, error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return DiskWrite{}, fmt.Errorf("diskwrite: truncated record header: %w", err)
		}
		return DiskWrite{}, err
	}

	rec := DiskWrite{
		Flags:  Flag(binary.BigEndian.Uint32(hdr[0:4])),
		Sector: binary.BigEndian.Uint64(hdr[4:12]),
		Size:   binary.BigEndian.Uint32(hdr[12:16]),
	}
	payloadLen := binary.BigEndian.Uint32(hdr[16:20])
	if payloadLen > 0 {
		rec.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, rec.Payload); err != nil {
			return DiskWrite{}, fmt.Errorf("diskwrite: truncated payload: %w", err)
		}
	}
	return rec, nil
}
