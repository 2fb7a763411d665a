package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/rs/zerolog"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 160, 16000, 123457} {
		var buf bytes.Buffer
		if err := WriteHeader(&buf, NewHeader(n)); err != nil {
			t.Fatal(err)
		}
		if buf.Len() != HeaderSize {
			t.Fatalf("header is %d bytes", buf.Len())
		}
		h, err := ParseHeader(&buf)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if h.Channels != 1 || h.SampleRate != 16000 || h.BitsPerSample != 16 || h.DataLength != uint32(2*n) {
			t.Errorf("n=%d: unexpected header %+v", n, h)
		}
		if h.BlockAlign != 2 || h.ByteRate != 32000 {
			t.Errorf("n=%d: unexpected rates %+v", n, h)
		}
	}
}

func TestParseHeaderSkipsList(t *testing.T) {
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	binary.Write(&buf, le, uint32(0))
	buf.WriteString("WAVE")
	// odd-sized LIST chunk with its pad byte
	buf.WriteString("LIST")
	binary.Write(&buf, le, uint32(5))
	buf.Write([]byte{'I', 'N', 'F', 'O', 'x', 0})
	buf.WriteString("fmt ")
	binary.Write(&buf, le, uint32(18))
	binary.Write(&buf, le, []uint16{1, 1})
	binary.Write(&buf, le, []uint32{16000, 32000})
	binary.Write(&buf, le, []uint16{2, 16, 0})
	buf.WriteString("data")
	binary.Write(&buf, le, uint32(64000))

	h, err := ParseHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.DataLength != 64000 || h.SampleRate != 16000 || h.Duration() != 2 {
		t.Errorf("unexpected header %+v", h)
	}
}

func TestParseHeaderRejects(t *testing.T) {
	tests := map[string][]byte{
		"short":   []byte("RIFF"),
		"not wav": []byte("RIFF\x00\x00\x00\x00AVI LIST"),
		"no fmt":  append([]byte("RIFF\x00\x00\x00\x00WAVEdata"), 0, 0, 0, 0),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseHeader(bytes.NewReader(data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestEncodePCM16(t *testing.T) {
	got := EncodePCM16([]float32{0, 1, -1, 2, -3, 0.5})
	want := []int16{0, 0x7FFF, -0x8000, 0x7FFF, -0x8000, 0x3FFF}
	for i, w := range want {
		v := int16(binary.LittleEndian.Uint16(got[2*i:]))
		if v != w {
			t.Errorf("sample %d = %d, want %d", i, v, w)
		}
	}
}

func TestEncodeAndDecodeFloat32(t *testing.T) {
	raw := make([]byte, 4*3+2)
	for i, v := range []float32{0.25, -0.25, 0} {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	samples := DecodeFloat32(raw)
	if len(samples) != 3 || samples[0] != 0.25 {
		t.Fatalf("decoded %v", samples)
	}
	wav := Encode(samples)
	h, err := ParseHeader(bytes.NewReader(wav))
	if err != nil {
		t.Fatal(err)
	}
	if h.DataLength != 6 || len(wav) != HeaderSize+6 {
		t.Errorf("header %+v, file %d bytes", h, len(wav))
	}
}

func TestCaptureWithoutDecoderIsDegraded(t *testing.T) {
	ex := New(ModeCapture, nil, zerolog.Nop())
	a, err := ex.Extract(context.Background(), "in.mp4", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Degraded || a.Duration != 0 || len(a.Data) != HeaderSize {
		t.Errorf("unexpected placeholder %+v", a)
	}
	// Delegated without an executor falls back the same way.
	if _, ok := New(ModeDelegated, nil, zerolog.Nop()).(*Capture); !ok {
		t.Error("delegated without ffmpeg should fall back to capture")
	}
}
