package transcribe

import (
	"context"
	"encoding/binary"
	"math"
)

// Segment is a finite, already-closed snapshot of captured audio. The full
// utterance must be buffered before a Segment is handed to a Transcriber.
type Segment struct {
	PCM        []byte // 16-bit little-endian samples
	SampleRate int
	Channels   int
}

// Transcriber converts one audio segment into text. Empty or silent input
// yields "" with a nil error; callers treat that as "no input", never as a
// failed turn. Recognition failures are not retried.
type Transcriber interface {
	Transcribe(ctx context.Context, seg Segment) (string, error)
}

// silenceRMS is the energy floor below which a segment is treated as dead air.
const silenceRMS = 250.0

// IsSilent reports whether the segment carries no usable voice energy.
func IsSilent(seg Segment) bool {
	if len(seg.PCM) < 4 {
		return true
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(seg.PCM); i += 2 {
		v := int16(binary.LittleEndian.Uint16(seg.PCM[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return true
	}
	return math.Sqrt(sumSquares/float64(count)) < silenceRMS
}
