// Package frame implements the serial frame of the multiprotocol module.
//
// Frame layout:
//
//	[0]      sync 0x55
//	[1]      protocol id
//	[2]      flags: bind<<7 | range check<<6 | autobind<<5 | sub protocol&0x1F
//	[3]      option, signed value shifted by 32
//	[4]      rx slot [0, 15]
//	[5:n-1]  channels, two bytes each: low 8 bits, high 3 bits
//	[n-1]    XOR of all bytes except sync
package frame

import (
	"errors"
	"fmt"
)

const (
	// Sync is the first byte of every frame.
	Sync byte = 0x55
	// HeaderLen is the number of bytes before channel data.
	HeaderLen = 5
	// MaxChannels is the maximum number of channels in a frame.
	MaxChannels = 16
	// MaxValue is the maximum 11-bit channel value.
	MaxValue = 2047
	// Neutral is the centre channel value.
	Neutral = 1024
	// MaxRxSlot is the highest receiver slot.
	MaxRxSlot = 15
	// MinOption and MaxOption limit the signed option value.
	MinOption = -32
	MaxOption = 31
)

// ProtocolAFHDS2A is the protocol id of FlySky AFHDS 2A receivers.
const ProtocolAFHDS2A byte = 28

// AFHDS2A sub protocols.
const (
	PWMIBus byte = iota
	PPMIBus
	PWMSBus
	PPMSBus
	GyroOff
	GyroOn
	GyroOnRev
)

const (
	flagBind        = 0x80
	flagRangeCheck  = 0x40
	flagAutobind    = 0x20
	subProtocolMask = 0x1F
)

var (
	// ErrSync is returned when frame doesn't start with sync byte.
	ErrSync = errors.New("invalid sync byte")
	// ErrLength is returned when frame length is not valid.
	ErrLength = errors.New("invalid frame length")
	// ErrChecksum is returned when frame checksum doesn't match.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrTooManyChannels is returned when more than MaxChannels are encoded.
	ErrTooManyChannels = errors.New("too many channels")
)

// Header holds protocol metadata of the frame.
type Header struct {
	Protocol    byte
	SubProtocol byte
	Bind        bool
	RangeCheck  bool
	Autobind    bool
	Option      int8
	RxSlot      byte
}

// Len returns the length of the frame with n channels.
func Len(n int) int {
	return HeaderLen + 2*n + 1
}

// Encode returns a new frame with provided header and channels.
func Encode(h Header, channels []uint16) ([]byte, error) {
	return Append(make([]byte, 0, Len(len(channels))), h, channels)
}

// Append encodes the frame and appends it to dst. If dst has enough
// capacity, no allocation happens. Channel values are clamped to MaxValue
// and rx slot is clamped to MaxRxSlot.
func Append(dst []byte, h Header, channels []uint16) ([]byte, error) {
	if len(channels) > MaxChannels {
		return dst, fmt.Errorf("%w: %d", ErrTooManyChannels, len(channels))
	}
	rx := h.RxSlot
	if rx > MaxRxSlot {
		rx = MaxRxSlot
	}
	start := len(dst)
	dst = append(dst, Sync, h.Protocol, h.flags(), byte(int(h.Option)+32), rx)
	for _, v := range channels {
		if v > MaxValue {
			v = MaxValue
		}
		dst = append(dst, byte(v), byte(v>>8)&0x07)
	}
	return append(dst, Checksum(dst[start+1:])), nil
}

func (h Header) flags() byte {
	f := h.SubProtocol & subProtocolMask
	if h.Bind {
		f |= flagBind
	}
	if h.RangeCheck {
		f |= flagRangeCheck
	}
	if h.Autobind {
		f |= flagAutobind
	}
	return f
}

// Checksum returns XOR of all bytes.
func Checksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c ^= v
	}
	return c
}

// Decode parses the frame and returns its header and channel values.
func Decode(b []byte) (Header, []uint16, error) {
	if len(b) < Len(0) {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrLength, len(b))
	}
	if b[0] != Sync {
		return Header{}, nil, fmt.Errorf("%w: 0x%02x", ErrSync, b[0])
	}
	data := b[HeaderLen : len(b)-1]
	if len(data)%2 != 0 || len(data)/2 > MaxChannels {
		return Header{}, nil, fmt.Errorf("%w: %d channel bytes", ErrLength, len(data))
	}
	if expected, got := Checksum(b[1:len(b)-1]), b[len(b)-1]; expected != got {
		return Header{}, nil, fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrChecksum, expected, got)
	}
	h := Header{
		Protocol:    b[1],
		SubProtocol: b[2] & subProtocolMask,
		Bind:        b[2]&flagBind != 0,
		RangeCheck:  b[2]&flagRangeCheck != 0,
		Autobind:    b[2]&flagAutobind != 0,
		Option:      int8(b[3] - 32),
		RxSlot:      b[4],
	}
	channels := make([]uint16, len(data)/2)
	for i := range channels {
		channels[i] = uint16(data[2*i]) | uint16(data[2*i+1]&0x07)<<8
	}
	return h, channels, nil
}
