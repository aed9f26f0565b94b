package state

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes state objects to and from their canonical byte form.
// The encoding must be deterministic: encoding the same logical state
// twice must produce identical bytes, since change detection digests the
// stream.
type Codec interface {
	// Encode writes the canonical serialization of st to w.
	Encode(w io.Writer, st State) error

	// Decode reads a serialization produced by Encode from r into st.
	Decode(r io.Reader, st State) error
}

// MsgpackCodec is the default Codec, encoding state as MessagePack with
// sorted map keys so the byte stream is deterministic.
type MsgpackCodec struct{}

// NewMsgpackCodec returns the default msgpack codec.
func NewMsgpackCodec() *MsgpackCodec {
	return &MsgpackCodec{}
}

// Encode writes st to w as canonical MessagePack.
func (*MsgpackCodec) Encode(w io.Writer, st State) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)

	return enc.Encode(st)
}

// Decode reads MessagePack from r into st.
func (*MsgpackCodec) Decode(r io.Reader, st State) error {
	dec := msgpack.NewDecoder(r)

	return dec.Decode(st)
}

// Ensure MsgpackCodec implements Codec at compile time.
var _ Codec = (*MsgpackCodec)(nil)
