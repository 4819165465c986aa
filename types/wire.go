package types

import (
	"fmt"

	"xmrhwsigner/serialize"
)

// Variant codes from xmrtypes.py (TxInV / TxoutTargetV / TxExtraField).
const (
	variantTxinToKey  = 0x02
	variantTxoutToKey = 0x02

	extraTagPadding           = 0x00
	extraTagPubKey            = 0x01
	extraTagNonce             = 0x02
	extraTagMergeMining       = 0x03
	extraTagAdditionalPubKeys = 0x04
)

// ToRelativeOffsets converts ascending global output indices into the
// relative-delta encoding the wire format requires: Δ0 = g0,
// Δk = gk − g(k-1). globals must already be sorted ascending.
func ToRelativeOffsets(globals []uint64) []uint64 {
	out := make([]uint64, len(globals))
	var prev uint64
	for i, g := range globals {
		if i == 0 {
			out[i] = g
		} else {
			out[i] = g - prev
		}
		prev = g
	}
	return out
}

// WriteCanonical serializes a TxinToKey as the variant-tagged vin: tag
// 0x02, then varint amount, then the key_offsets container, then the
// 32-byte key image.
func (v TxinToKey) WriteCanonical(w *serialize.Writer) {
	w.WriteVariantTag(variantTxinToKey)
	w.WriteUvarint(v.Amount)
	w.WriteContainerSize(len(v.KeyOffsets))
	for _, o := range v.KeyOffsets {
		w.WriteUvarint(o)
	}
	kiBytes := v.KImage.Bytes()
	w.WriteFixedBlob(kiBytes[:])
}

// WriteCanonical serializes a TxOut: varint amount, then the
// TxoutToKey variant (tag 0x02, 32-byte key).
func (o TxOut) WriteCanonical(w *serialize.Writer) {
	w.WriteUvarint(o.Amount)
	w.WriteVariantTag(variantTxoutToKey)
	keyBytes := o.Target.Key.Bytes()
	w.WriteFixedBlob(keyBytes[:])
}

// WriteCanonical serializes a CtKey: dest then mask, 32 bytes each.
func (k CtKey) WriteCanonical(w *serialize.Writer) {
	d := k.Dest.Bytes()
	m := k.Mask.Bytes()
	w.WriteFixedBlob(d[:])
	w.WriteFixedBlob(m[:])
}

// WriteCanonical serializes an EcdhTuple: mask then the 8-byte
// obfuscated amount.
func (e EcdhTuple) WriteCanonical(w *serialize.Writer) {
	m := e.Mask.Bytes()
	w.WriteFixedBlob(m[:])
	w.WriteFixedBlob(e.Amount[:])
}

// WriteCanonical serializes a RangeSig: the Borromean signature (s0,
// s1, ee, each fixed-size) then the 64 per-bit commitments.
func (r RangeSig) WriteCanonical(w *serialize.Writer) {
	for _, s := range r.Asig.S0 {
		w.WriteFixedBlob(s[:])
	}
	for _, s := range r.Asig.S1 {
		w.WriteFixedBlob(s[:])
	}
	w.WriteFixedBlob(r.Asig.EE[:])
	for _, c := range r.Ci {
		w.WriteFixedBlob(c[:])
	}
}

// WriteCanonical serializes an MgSig: the ss matrix (rows of scalars,
// no length prefixes — shape is inferred from mixin+1 by the reader)
// then cc.
func (m MgSig) WriteCanonical(w *serialize.Writer) {
	for _, row := range m.Ss {
		for _, s := range row {
			b := s.Bytes()
			w.WriteFixedBlob(b[:])
		}
	}
	cc := m.Cc.Bytes()
	w.WriteFixedBlob(cc[:])
}

// ExtraField is one TLV entry in the transaction's extra blob.
type ExtraField struct {
	Tag   byte
	Value []byte
}

// WriteExtra serializes a sequence of TLV fields into the extra blob
// format: tag byte, varint length, value bytes (padding and the plain
// 32-byte pubkey field are fixed-size and carry no length prefix,
// matching the reference client's extra-field encoding).
func WriteExtra(fields []ExtraField) []byte {
	w := serialize.NewWriter()
	for _, f := range fields {
		w.WriteRaw([]byte{f.Tag})
		switch f.Tag {
		case extraTagPubKey, extraTagPadding:
			w.WriteFixedBlob(f.Value)
		case extraTagAdditionalPubKeys:
			n := len(f.Value) / 32
			w.WriteContainerSize(n)
			w.WriteRaw(f.Value)
		default:
			w.WriteBlob(f.Value)
		}
	}
	return w.Bytes()
}

// ReadExtra parses the extra blob back into its TLV fields, used by
// tests that round-trip WriteExtra's output.
func ReadExtra(b []byte) ([]ExtraField, error) {
	if len(b) == 0 {
		return nil, nil
	}
	r := serialize.NewReader(b)
	var fields []ExtraField
	for {
		tag := r.ReadVariantTag()
		if r.Err() != nil {
			break
		}
		var value []byte
		switch tag {
		case extraTagPubKey:
			value = r.ReadFixedBlob(32)
		case extraTagAdditionalPubKeys:
			n := r.ReadContainerSize()
			w := serialize.NewWriter()
			for i := 0; i < n; i++ {
				w.WriteFixedBlob(r.ReadFixedBlob(32))
			}
			value = w.Bytes()
		default:
			value = r.ReadBlob()
		}
		if r.Err() != nil {
			return nil, fmt.Errorf("types: malformed extra field tag 0x%02x: %w", tag, r.Err())
		}
		fields = append(fields, ExtraField{Tag: tag, Value: value})
	}
	return fields, nil
}
