package bridge

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame layout: [0xA5, op, pin, value..., crc16-lo, crc16-hi]. The CRC is
// Modbus CRC16 over every byte before it, start byte included.
const frameStart = 0xA5

// Op identifies a bridge frame.
type Op byte

const (
	OpConfigOutput Op = 0x01
	OpConfigInput  Op = 0x02
	OpWrite        Op = 0x03
	OpReadRequest  Op = 0x04
	OpArmEdges     Op = 0x05
	OpReadReply    Op = 0x84
	OpEdgeEvent    Op = 0x85
)

// Edge kinds carried in an edge event.
const (
	EdgeFalling byte = 0
	EdgeRising  byte = 1
)

var (
	ErrBadCRC    = errors.New("bridge frame crc mismatch")
	ErrUnknownOp = errors.New("unknown bridge op")
)

// valueLen is the number of value bytes each op carries.
var valueLen = map[Op]int{
	OpConfigOutput: 0,
	OpConfigInput:  0,
	OpWrite:        1,
	OpReadRequest:  0,
	OpArmEdges:     0,
	OpReadReply:    1,
	OpEdgeEvent:    9, // edge, sec u32 LE, nsec u32 LE
}

type Frame struct {
	Op    Op
	Pin   byte
	Value []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("op=0x%02X pin=%d value=% X", byte(f.Op), f.Pin, f.Value)
}

// Encode returns the wire form of f.
func (f Frame) Encode() ([]byte, error) {
	n, ok := valueLen[f.Op]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownOp, byte(f.Op))
	}
	if len(f.Value) != n {
		return nil, fmt.Errorf("op 0x%02X takes %d value bytes, got %d", byte(f.Op), n, len(f.Value))
	}

	buf := make([]byte, 0, 5+n)
	buf = append(buf, frameStart, byte(f.Op), f.Pin)
	buf = append(buf, f.Value...)
	return binary.LittleEndian.AppendUint16(buf, crc16(buf)), nil
}

// EdgeEventFrame builds the frame the bridge sends when an armed pin changes.
func EdgeEventFrame(pin, edge byte, sec, nsec uint32) Frame {
	v := make([]byte, 9)
	v[0] = edge
	binary.LittleEndian.PutUint32(v[1:5], sec)
	binary.LittleEndian.PutUint32(v[5:9], nsec)
	return Frame{Op: OpEdgeEvent, Pin: pin, Value: v}
}

// ParseEdgeEvent splits an edge event value.
func ParseEdgeEvent(f Frame) (edge byte, sec, nsec uint32, err error) {
	if f.Op != OpEdgeEvent || len(f.Value) != 9 {
		return 0, 0, 0, fmt.Errorf("not an edge event: %s", f)
	}
	return f.Value[0], binary.LittleEndian.Uint32(f.Value[1:5]), binary.LittleEndian.Uint32(f.Value[5:9]), nil
}

// Decoder reads frames from a byte stream, resynchronising on the start byte.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode returns the next frame. Corrupt frames yield ErrBadCRC or
// ErrUnknownOp; the caller may keep decoding afterwards.
func (d *Decoder) Decode() (Frame, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == frameStart {
			break
		}
	}

	header := []byte{frameStart, 0, 0}
	if _, err := io.ReadFull(d.r, header[1:]); err != nil {
		return Frame{}, err
	}

	op := Op(header[1])
	n, ok := valueLen[op]
	if !ok {
		return Frame{}, fmt.Errorf("%w: 0x%02X", ErrUnknownOp, header[1])
	}

	rest := make([]byte, n+2)
	if _, err := io.ReadFull(d.r, rest); err != nil {
		return Frame{}, err
	}

	body := append(header, rest[:n]...)
	if got, want := binary.LittleEndian.Uint16(rest[n:]), crc16(body); got != want {
		return Frame{}, fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrBadCRC, got, want)
	}

	f := Frame{Op: op, Pin: header[2]}
	if n > 0 {
		f.Value = append([]byte(nil), rest[:n]...)
	}
	return f, nil
}

func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
