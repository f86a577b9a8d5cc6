package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeWAVPCM16LE wraps raw PCM16LE audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate, channels int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate, channels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate, channels int) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(audioFormat)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(channels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// DecodeWAVPCM16LE extracts PCM16LE samples from a WAV container.
// Only uncompressed 16-bit PCM is accepted.
func DecodeWAVPCM16LE(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 44 {
		return nil, 0, 0, fmt.Errorf("wav: file too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("wav: missing RIFF/WAVE header")
	}

	var fmtSeen bool
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkSize > len(data) {
			return nil, 0, 0, fmt.Errorf("wav: truncated %q chunk", chunkID)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, 0, fmt.Errorf("wav: fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if audioFormat != 1 || bits != 16 {
				return nil, 0, 0, fmt.Errorf("wav: unsupported format (format=%d bits=%d)", audioFormat, bits)
			}
			if channels <= 0 || sampleRate <= 0 {
				return nil, 0, 0, fmt.Errorf("wav: invalid fmt chunk (channels=%d rate=%d)", channels, sampleRate)
			}
			fmtSeen = true
		case "data":
			if !fmtSeen {
				return nil, 0, 0, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			pcm = make([]byte, chunkSize)
			copy(pcm, data[body:body+chunkSize])
			return pcm, sampleRate, channels, nil
		}
		// Chunks are word aligned.
		pos = body + chunkSize + chunkSize%2
	}
	return nil, 0, 0, fmt.Errorf("wav: no data chunk found")
}
