package prd

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

var cborHandle = &codec.CborHandle{}

// Envelope is the wire container for one outbound datagram: a sequence
// number and payload for the application data it carries (if any),
// piggybacked with whatever acks and resend requests this session has
// accumulated since the last envelope went out. A bare control envelope
// — nothing but acks and resend requests — carries no Payload and a
// negative Seq.
type Envelope struct {
	Seq            int
	Payload        []byte
	Acks           []int
	ResendRequests []int
}

// IsControlOnly reports whether this envelope carries no application
// payload, and exists purely to flush acks and resend requests.
func (e *Envelope) IsControlOnly() bool {
	return e.Seq < 0
}

// EncodeEnvelope serializes an envelope to CBOR for transport.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, cborHandle)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope deserializes an envelope previously produced by
// EncodeEnvelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	e := &Envelope{}
	dec := codec.NewDecoder(bytes.NewReader(data), cborHandle)
	if err := dec.Decode(e); err != nil {
		return nil, err
	}
	return e, nil
}
