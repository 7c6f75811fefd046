package history

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/nstogner/agentcore/pkg/content"
)

// ErrCorruptCheckpoint is returned when a checkpoint fails verification.
var ErrCorruptCheckpoint = errors.New("corrupt history checkpoint")

var checkpointMagic = []byte("AGCK\x01")

const digestSize = 32

type checkpoint struct {
	Turns []content.WireTurn `cbor:"1,keyasint"`
}

var (
	codecOnce sync.Once
	encMode   cbor.EncMode
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() {
	codecOnce.Do(func() {
		encMode, codecErr = cbor.CoreDetEncOptions().EncMode()
		if codecErr != nil {
			return
		}
		encoder, codecErr = zstd.NewWriter(nil)
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
}

// Checkpoint serializes the history as deterministic CBOR, compresses it and
// prefixes a BLAKE3 digest of the compressed payload.
func (h *History) Checkpoint() ([]byte, error) {
	initCodec()
	if codecErr != nil {
		return nil, fmt.Errorf("init checkpoint codec: %w", codecErr)
	}
	turns := h.Turns()
	cp := checkpoint{Turns: make([]content.WireTurn, 0, len(turns))}
	for _, t := range turns {
		wt, err := content.TurnToWire(t)
		if err != nil {
			return nil, err
		}
		cp.Turns = append(cp.Turns, wt)
	}
	raw, err := encMode.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	payload := encoder.EncodeAll(raw, nil)
	digest := blake3.Sum256(payload)

	var buf bytes.Buffer
	buf.Grow(len(checkpointMagic) + digestSize + len(payload))
	buf.Write(checkpointMagic)
	buf.Write(digest[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// RestoreCheckpoint decodes data produced by Checkpoint.
func RestoreCheckpoint(data []byte) (*History, error) {
	initCodec()
	if codecErr != nil {
		return nil, fmt.Errorf("init checkpoint codec: %w", codecErr)
	}
	if len(data) < len(checkpointMagic)+digestSize || !bytes.Equal(data[:len(checkpointMagic)], checkpointMagic) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptCheckpoint)
	}
	data = data[len(checkpointMagic):]
	var want [digestSize]byte
	copy(want[:], data[:digestSize])
	payload := data[digestSize:]
	if blake3.Sum256(payload) != want {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorruptCheckpoint)
	}

	raw, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}
	var cp checkpoint
	if err := cbor.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}
	turns := make([]content.Turn, 0, len(cp.Turns))
	for _, wt := range cp.Turns {
		t, err := content.TurnFromWire(wt)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return FromTurns(turns), nil
}
