package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pcm := make([]byte, 320)
	for i := 0; i+1 < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(i*7))
	}

	wav, err := EncodeWAVPCM16LE(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	got, rate, channels, err := DecodeWAVPCM16LE(wav)
	if err != nil {
		t.Fatalf("DecodeWAVPCM16LE() error = %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Fatalf("decoded rate=%d channels=%d, want 16000/1", rate, channels)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("decoded PCM differs from input")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeWAVPCM16LE([]byte("definitely not a wav file at all......")); err == nil {
		t.Fatalf("DecodeWAVPCM16LE() accepted garbage input")
	}
}

func TestDecodeRejectsNonPCM(t *testing.T) {
	wav, err := EncodeWAVPCM16LE(make([]byte, 64), 8000, 1)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	// Flip the audio format field to 3 (IEEE float).
	binary.LittleEndian.PutUint16(wav[20:], 3)
	if _, _, _, err := DecodeWAVPCM16LE(wav); err == nil {
		t.Fatalf("DecodeWAVPCM16LE() accepted non-PCM format")
	}
}

func TestEncodeHeaderSizes(t *testing.T) {
	pcm := make([]byte, 100)
	wav, err := EncodeWAVPCM16LE(pcm, 44100, 2)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[40:]); got != uint32(len(pcm)) {
		t.Fatalf("data chunk size = %d, want %d", got, len(pcm))
	}
}
