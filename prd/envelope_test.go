package prd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	require := require.New(t)

	orig := &Envelope{
		Seq:            7,
		Payload:        []byte("hello overlay"),
		Acks:           []int{1, 2, 3},
		ResendRequests: []int{9},
	}
	data, err := EncodeEnvelope(orig)
	require.NoError(err)
	require.NotEmpty(data)

	got, err := DecodeEnvelope(data)
	require.NoError(err)
	require.Equal(orig.Seq, got.Seq)
	require.Equal(orig.Payload, got.Payload)
	require.Equal(orig.Acks, got.Acks)
	require.Equal(orig.ResendRequests, got.ResendRequests)
}

func TestEnvelopeControlOnly(t *testing.T) {
	require := require.New(t)
	e := &Envelope{Seq: -1, Acks: []int{1}}
	require.True(e.IsControlOnly())

	e2 := &Envelope{Seq: 0, Payload: []byte("x")}
	require.False(e2.IsControlOnly())
}
