package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	CodecJSON  = "json"
	CodecProto = "proto"
)

// Codec turns packets into datagrams and back. Both codecs carry the same
// field-named record; they differ only in framing.
type Codec interface {
	Name() string
	Encode(Packet) ([]byte, error)
	Decode([]byte) (Packet, error)
}

func NewCodec(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecProto:
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec speaks the plain JSON object protocol used by existing clients.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(p Packet) ([]byte, error) {
	rec := p.record()
	if err := checkRange(p.Kind(), rec); err != nil {
		return nil, err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", p.Kind(), err)
	}
	return checkSize(b)
}

func (JSONCodec) Decode(b []byte) (Packet, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	return fromRecord(rec)
}

// ProtoCodec carries the record as a google.protobuf.Struct. Struct numbers
// are doubles, so integer fields are bounded by MaxInteger.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return CodecProto }

func (ProtoCodec) Encode(p Packet) ([]byte, error) {
	rec := p.record()
	if err := checkRange(p.Kind(), rec); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(rec)
	if err != nil {
		return nil, fmt.Errorf("build struct %s: %w", p.Kind(), err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", p.Kind(), err)
	}
	return checkSize(b)
}

func (ProtoCodec) Decode(b []byte) (Packet, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return fromRecord(s.AsMap())
}

func checkSize(b []byte) ([]byte, error) {
	if len(b) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	return b, nil
}
