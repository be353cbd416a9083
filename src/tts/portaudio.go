package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// AudioSynth renders speech to WAV with espeak-ng and plays it through the
// default PortAudio output device, checking for cancellation between buffers.
type AudioSynth struct {
	render func(ctx context.Context, text string) ([]byte, error)
}

// NewAudioSynth initializes PortAudio. Call Close to release it.
func NewAudioSynth(lookPath func(string) (string, error), locale string, rate int) (*AudioSynth, error) {
	bin, err := lookPath("espeak-ng")
	if err != nil {
		if bin, err = lookPath("espeak"); err != nil {
			return nil, ErrNoSynthesizer
		}
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	voice := Voice(locale)
	return &AudioSynth{
		render: func(ctx context.Context, text string) ([]byte, error) {
			var out, stderr bytes.Buffer
			cmd := exec.CommandContext(ctx, bin, "--stdout", "-v", voice, "-s", strconv.Itoa(rate), text)
			cmd.Stdout = &out
			cmd.Stderr = &stderr
			if err := cmd.Run(); err != nil {
				return nil, fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
			}
			return out.Bytes(), nil
		},
	}, nil
}

func (s *AudioSynth) Say(ctx context.Context, text string) error {
	wav, err := s.render(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	pcm, err := DecodeWAV(wav)
	if err != nil {
		return err
	}
	return play(ctx, pcm)
}

func play(ctx context.Context, pcm *PCM) error {
	buf := make([]int16, framesPerBuffer*pcm.Channels)
	stream, err := portaudio.OpenDefaultStream(0, pcm.Channels, float64(pcm.SampleRate), framesPerBuffer, &buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(pcm.Samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, pcm.Samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

func (s *AudioSynth) Close() error {
	return portaudio.Terminate()
}
