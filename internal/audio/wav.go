package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Target format for transcription input.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	HeaderSize    = 44
)

// Header is the fmt and data chunk summary of a PCM WAV file.
type Header struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	BlockAlign    uint16
	ByteRate      uint32
	DataLength    uint32
}

// NewHeader describes samples mono 16-bit samples at 16 kHz.
func NewHeader(samples int) Header {
	blockAlign := uint16(Channels * BitsPerSample / 8)
	return Header{
		Channels:      Channels,
		SampleRate:    SampleRate,
		BitsPerSample: BitsPerSample,
		BlockAlign:    blockAlign,
		ByteRate:      SampleRate * uint32(blockAlign),
		DataLength:    uint32(samples) * uint32(blockAlign),
	}
}

// Duration returns the payload length in seconds.
func (h Header) Duration() float64 {
	if h.ByteRate == 0 {
		return 0
	}
	return float64(h.DataLength) / float64(h.ByteRate)
}

// WriteHeader writes the canonical 44-byte RIFF/WAVE header.
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	le := binary.LittleEndian
	copy(buf[0:], "RIFF")
	le.PutUint32(buf[4:], 36+h.DataLength)
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	le.PutUint32(buf[16:], 16)
	le.PutUint16(buf[20:], 1) // PCM
	le.PutUint16(buf[22:], h.Channels)
	le.PutUint32(buf[24:], h.SampleRate)
	le.PutUint32(buf[28:], h.ByteRate)
	le.PutUint16(buf[32:], h.BlockAlign)
	le.PutUint16(buf[34:], h.BitsPerSample)
	copy(buf[36:], "data")
	le.PutUint32(buf[40:], h.DataLength)
	_, err := w.Write(buf[:])
	return err
}

// EncodePCM16 converts float samples in [-1,1] to little-endian signed
// 16-bit PCM. Out-of-range values are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		var pcm int16
		if v < 0 {
			pcm = int16(v * 0x8000)
		} else {
			pcm = int16(v * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(pcm))
	}
	return out
}

// DecodeFloat32 reads little-endian f32 samples, ignoring a trailing partial sample.
func DecodeFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}

// Encode builds a complete WAV file from float samples.
func Encode(samples []float32) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + 2*len(samples))
	_ = WriteHeader(&buf, NewHeader(len(samples)))
	buf.Write(EncodePCM16(samples))
	return buf.Bytes()
}

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// ParseHeader walks the RIFF chunks up to "data". Unknown chunks such as
// LIST are skipped.
func ParseHeader(r io.Reader) (Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Header{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Header{}, errNotWAV
	}

	var h Header
	var haveFmt bool
	le := binary.LittleEndian
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return Header{}, fmt.Errorf("read chunk header: %w", err)
		}
		id, size := string(ch[0:4]), le.Uint32(ch[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return Header{}, fmt.Errorf("fmt chunk too short: %d", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Header{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			h.Channels = le.Uint16(body[2:])
			h.SampleRate = le.Uint32(body[4:])
			h.ByteRate = le.Uint32(body[8:])
			h.BlockAlign = le.Uint16(body[12:])
			h.BitsPerSample = le.Uint16(body[14:])
			haveFmt = true
			if size%2 == 1 {
				if err := skip(r, 1); err != nil {
					return Header{}, err
				}
			}
		case "data":
			if !haveFmt {
				return Header{}, fmt.Errorf("data chunk before fmt chunk")
			}
			h.DataLength = size
			return h, nil
		default:
			if err := skip(r, int64(size)+int64(size%2)); err != nil {
				return Header{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}
