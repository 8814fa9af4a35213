package types

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	tmbytes "github.com/ethersync/ethersync/libs/bytes"
)

// HashByteLength is the length of a header hash, in bytes.
const HashByteLength = sha256.Size

// MaxExtraDataBytes bounds the free-form Extra field of a header.
const MaxExtraDataBytes = 32

// Header is a block header as exchanged on the block download channel. Two
// headers are equal iff their hashes are equal. The download pipeline treats
// everything beyond the parent link and the height as opaque payload.
type Header struct {
	Height int64     `json:"height,string"`
	Time   time.Time `json:"time"`

	// prev block info
	ParentHash tmbytes.HexBytes `json:"parent_hash"`

	// hashes of block data and resulting state
	DataHash  tmbytes.HexBytes `json:"data_hash"`
	StateHash tmbytes.HexBytes `json:"state_hash"`

	Extra tmbytes.HexBytes `json:"extra"`
}

// Hash returns the hash of the header. It computes a SHA-256 digest over the
// canonical binary encoding of all fields. Returns nil if the header is nil.
func (h *Header) Hash() tmbytes.HexBytes {
	if h == nil {
		return nil
	}
	hw := sha256.New()
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(h.Height))
	hw.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(h.Time.UnixNano()))
	hw.Write(scratch[:])
	for _, field := range [][]byte{h.ParentHash, h.DataHash, h.StateHash, h.Extra} {
		binary.BigEndian.PutUint32(scratch[:4], uint32(len(field)))
		hw.Write(scratch[:4])
		hw.Write(field)
	}
	return hw.Sum(nil)
}

// ValidateBasic performs stateless validation on a header returned by a
// remote peer. It does not verify the parent link, which requires the parent
// header and is checked during queue assembly.
func (h *Header) ValidateBasic() error {
	if h == nil {
		return errors.New("nil header")
	}
	if h.Height < 0 {
		return errors.New("negative height")
	} else if h.Height == 0 {
		return errors.New("zero height")
	}
	if h.Height > 1 && len(h.ParentHash) != HashByteLength {
		return fmt.Errorf("wrong parent hash length, got %d, want %d",
			len(h.ParentHash), HashByteLength)
	}
	if len(h.Extra) > MaxExtraDataBytes {
		return fmt.Errorf("extra data too long, got %d, max %d", len(h.Extra), MaxExtraDataBytes)
	}
	return nil
}

func (h *Header) String() string {
	if h == nil {
		return "nil-Header"
	}
	return fmt.Sprintf("Header{#%d %v parent:%v}", h.Height, h.Hash().ShortString(), h.ParentHash.ShortString())
}

// ShortDescr returns a compact form for log lines, e.g. "#42 (A1B2C3D4)".
func (h *Header) ShortDescr() string {
	if h == nil {
		return "nil"
	}
	return fmt.Sprintf("#%d (%v)", h.Height, h.Hash().ShortString())
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler
func (h *Header) MarshalZerologObject(e *zerolog.Event) {
	if h == nil {
		return
	}
	e.Int64("height", h.Height).
		Str("hash", h.Hash().ShortString()).
		Str("parent_hash", h.ParentHash.ShortString())
}

// HeaderWrapper couples a header with the ID of the node it was received
// from, so that misbehaviour discovered later can be attributed.
type HeaderWrapper struct {
	Header *Header `json:"header"`
	NodeID NodeID  `json:"node_id"`
}

// NewHeaderWrapper attributes header to the given node.
func NewHeaderWrapper(header *Header, nodeID NodeID) *HeaderWrapper {
	return &HeaderWrapper{Header: header, NodeID: nodeID}
}

// Hash is a shortcut for the wrapped header's hash.
func (hw *HeaderWrapper) Hash() tmbytes.HexBytes { return hw.Header.Hash() }

// Height is a shortcut for the wrapped header's height.
func (hw *HeaderWrapper) Height() int64 { return hw.Header.Height }

func (hw *HeaderWrapper) String() string {
	return fmt.Sprintf("HeaderWrapper{%v from %s}", hw.Header.ShortDescr(), hw.NodeID)
}
