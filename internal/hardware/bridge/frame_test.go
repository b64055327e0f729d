package bridge

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16_ModbusVector(t *testing.T) {
	assert.Equal(t, uint16(0xCDC5), crc16([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}))
}

func TestFrame_RoundTrip(t *testing.T) {
	frames := []Frame{
		{Op: OpConfigOutput, Pin: 23},
		{Op: OpWrite, Pin: 18, Value: []byte{1}},
		{Op: OpReadReply, Pin: 5, Value: []byte{0}},
		EdgeEventFrame(24, EdgeRising, 1700000000, 999_999_999),
	}

	var buf bytes.Buffer
	for _, f := range frames {
		data, err := f.Encode()
		require.NoError(t, err)
		buf.Write(data)
	}

	dec := NewDecoder(&buf)
	for _, want := range frames {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_EncodeRejectsBadFrames(t *testing.T) {
	_, err := Frame{Op: Op(0x42)}.Encode()
	assert.ErrorIs(t, err, ErrUnknownOp)

	_, err = Frame{Op: OpWrite, Pin: 1}.Encode()
	assert.Error(t, err)
}

func TestDecoder_ResyncAfterCorruption(t *testing.T) {
	good, err := Frame{Op: OpWrite, Pin: 7, Value: []byte{1}}.Encode()
	require.NoError(t, err)

	corrupt := append([]byte(nil), good...)
	corrupt[3] ^= 0xFF

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x13})
	buf.Write(corrupt)
	buf.Write(good)

	dec := NewDecoder(&buf)
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrBadCRC)

	f, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, byte(7), f.Pin)
	assert.Equal(t, []byte{1}, f.Value)
}

func TestParseEdgeEvent(t *testing.T) {
	edge, sec, nsec, err := ParseEdgeEvent(EdgeEventFrame(24, EdgeFalling, 12, 345))
	require.NoError(t, err)
	assert.Equal(t, EdgeFalling, edge)
	assert.Equal(t, uint32(12), sec)
	assert.Equal(t, uint32(345), nsec)

	_, _, _, err = ParseEdgeEvent(Frame{Op: OpReadReply, Value: []byte{1}})
	assert.Error(t, err)
}
