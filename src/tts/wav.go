package tts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrBadWAV = errors.New("tts: malformed wav stream")

// PCM is decoded 16-bit little-endian audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// DecodeWAV reads a RIFF/WAVE buffer holding 16-bit PCM. The data chunk is
// read to the end of the buffer, so the oversized length streaming encoders
// write is harmless.
func DecodeWAV(b []byte) (*PCM, error) {
	d := wav.NewDecoder(bytes.NewReader(b))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWAV, err)
	}
	if d.WavAudioFormat != 1 || d.BitDepth != 16 || d.NumChans < 1 {
		return nil, fmt.Errorf("%w: format=%d bits=%d channels=%d", ErrBadWAV, d.WavAudioFormat, d.BitDepth, d.NumChans)
	}
	return toPCM(buf), nil
}

func toPCM(buf *audio.IntBuffer) *PCM {
	pcm := &PCM{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Samples:    make([]int16, len(buf.Data)),
	}
	for i, v := range buf.Data {
		pcm.Samples[i] = int16(v)
	}
	return pcm
}
