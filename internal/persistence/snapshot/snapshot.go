// Package snapshot is the versioned save format: a json header line followed
// by a compressed gob body whose blake3 digest the header records.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"

	"arcanecycles.io/internal/sim/market"
	"arcanecycles.io/internal/sim/phase"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/territory"
	"arcanecycles.io/internal/sim/tuning"
	"arcanecycles.io/internal/sim/turns"
)

const Version = 1

var (
	ErrVersionMismatch = errors.New("snapshot version mismatch")
	ErrChecksum        = errors.New("snapshot checksum mismatch")
	ErrUnknownCodec    = errors.New("unknown snapshot codec")
)

type Codec string

const (
	Zstd Codec = "zstd"
	LZ4  Codec = "lz4"
)

func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", Zstd:
		return Zstd, nil
	case LZ4:
		return LZ4, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

type Header struct {
	Version int       `json:"version"`
	GameID  string    `json:"game_id"`
	SaveID  string    `json:"save_id"`
	Slot    string    `json:"slot"`
	Cycle   int       `json:"cycle"`
	Phase   string    `json:"phase"`
	SavedAt time.Time `json:"saved_at"`
	Codec   Codec     `json:"codec"`
	Blake3  string    `json:"blake3"`
}

type V1 struct {
	Version int
	GameID  string
	Seed    int64
	Tuning  tuning.Tuning

	ClockNow time.Duration
	Paused   bool
	Fault    string

	Registry  registry.Export
	Phase     phase.State
	Turns     turns.State
	Territory territory.State
	Market    market.State
	Banks     map[string]time.Duration
}

// Encode writes snap to w and returns the header it wrote. The caller fills
// the identifying header fields; Version, Codec and Blake3 are set here.
func Encode(w io.Writer, snap V1, h Header, codec Codec) (Header, error) {
	codec, err := ParseCodec(string(codec))
	if err != nil {
		return h, err
	}
	snap.Version = Version

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(&snap); err != nil {
		return h, fmt.Errorf("gob encode: %w", err)
	}
	sum := blake3.Sum256(body.Bytes())

	h.Version = Version
	h.Codec = codec
	h.Blake3 = hex.EncodeToString(sum[:])
	hb, err := json.Marshal(h)
	if err != nil {
		return h, err
	}

	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.Write(hb); err != nil {
		return h, err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return h, err
	}
	cw, err := compressor(bw, codec)
	if err != nil {
		return h, err
	}
	if _, err := cw.Write(body.Bytes()); err != nil {
		_ = cw.Close()
		return h, err
	}
	if err := cw.Close(); err != nil {
		return h, err
	}
	return h, bw.Flush()
}

// ReadHeader parses only the header line.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("parse header: %w", err)
	}
	return h, nil
}

func Decode(r io.Reader) (V1, Header, error) {
	var snap V1
	br := bufio.NewReaderSize(r, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, Header{}, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, h, fmt.Errorf("parse header: %w", err)
	}
	if h.Version != Version {
		return snap, h, fmt.Errorf("%w: file has %d, want %d", ErrVersionMismatch, h.Version, Version)
	}

	cr, err := decompressor(br, h.Codec)
	if err != nil {
		return snap, h, err
	}
	defer cr.Close()
	body, err := io.ReadAll(cr)
	if err != nil {
		return snap, h, fmt.Errorf("decompress: %w", err)
	}
	sum := blake3.Sum256(body)
	if hex.EncodeToString(sum[:]) != h.Blake3 {
		return snap, h, ErrChecksum
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&snap); err != nil {
		return snap, h, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Version != Version {
		return snap, h, fmt.Errorf("%w: body has %d, want %d", ErrVersionMismatch, snap.Version, Version)
	}
	return snap, h, nil
}

func compressor(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
}

func decompressor(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd, "":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
}

// Digest is a blake3 hash of the snapshot's canonical json form. Two games
// that played out identically share a digest.
func Digest(snap V1) (string, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
