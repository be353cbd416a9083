// Package narrate runs OCR over a cropped selection and reads the recognized
// blocks aloud, one utterance at a time.
package narrate

import (
	"context"
	"errors"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"select2speak/src/logutil"
	"select2speak/src/ocr"
	"select2speak/src/phrases"
	"select2speak/src/tts"
)

// ResultTarget receives the transcript of a finished pass.
type ResultTarget interface {
	OnSuccess(text string) error
	OnFailure(err error) error
}

type Options struct {
	Recognizer     ocr.Recognizer
	Speaker        tts.Speaker
	Phrases        phrases.Book
	RemoveNewlines bool
	// Target is optional.
	Target ResultTarget
}

// Report summarizes one narration pass.
type Report struct {
	Blocks   int
	Spoken   int
	Skipped  int
	Fallback string
	Stopped  bool
	Text     string
	// OCRErr is the recognition failure that led to a fallback, if any.
	OCRErr error
}

type Sink struct {
	opts Options
	log  zerolog.Logger
}

func New(opts Options) *Sink {
	return &Sink{opts: opts, log: logutil.Component("narrate")}
}

// Narrate speaks crop. A nil crop speaks the "no bitmap" phrase and an empty
// crop the "no text" phrase; neither reaches OCR. Each block is spoken in
// append mode and awaited before the next one starts.
func (s *Sink) Narrate(ctx context.Context, crop image.Image) Report {
	if crop == nil {
		s.log.Warn().Msg("no bitmap at gesture completion")
		return s.fallback(ctx, phrases.NoBitmap, Report{})
	}
	if crop.Bounds().Empty() {
		s.log.Info().Msg("empty selection")
		return s.fallback(ctx, phrases.NoText, Report{})
	}

	blocks, err := s.opts.Recognizer.Recognize(ctx, crop)
	if err != nil {
		ev := s.log.Warn()
		if errors.Is(err, ocr.ErrNotReady) {
			ev = s.log.Error()
		}
		ev.Err(err).Msg("recognition failed")
		if ctx.Err() != nil {
			return Report{OCRErr: err, Stopped: true}
		}
		return s.fallback(ctx, phrases.NoText, Report{OCRErr: err})
	}

	rep := Report{Blocks: len(blocks)}
	s.log.Info().Int("blocks", len(blocks)).Msg("text recognized")
	if len(blocks) == 0 {
		return s.fallback(ctx, phrases.NoText, rep)
	}

	var spoken []string
	for i, b := range blocks {
		if ctx.Err() != nil {
			rep.Stopped = true
			break
		}
		text := b.Text
		if strings.TrimSpace(text) == "" {
			s.log.Warn().Int("block", i).Msg("empty block text skipped")
			rep.Skipped++
			continue
		}
		if s.opts.RemoveNewlines {
			text = strings.ReplaceAll(text, "\n", " ")
		}
		s.log.Info().Int("block", i).Str("text", logutil.Preview(text, 80)).Msg("speak")

		if err := s.speak(ctx, text); err != nil {
			if errors.Is(err, tts.ErrStopped) || ctx.Err() != nil {
				rep.Stopped = true
				break
			}
			s.log.Warn().Err(err).Int("block", i).Msg("utterance failed")
			continue
		}
		rep.Spoken++
		spoken = append(spoken, text)
	}
	if rep.Spoken == 0 && rep.Skipped == len(blocks) {
		return s.fallback(ctx, phrases.NoText, rep)
	}

	rep.Text = strings.Join(spoken, "\n")
	s.deliver(rep)
	return rep
}

func (s *Sink) fallback(ctx context.Context, key phrases.Key, rep Report) Report {
	rep.Fallback = s.opts.Phrases.Get(key)
	if err := s.speak(ctx, rep.Fallback); err != nil {
		if errors.Is(err, tts.ErrStopped) {
			rep.Stopped = true
		} else {
			s.log.Warn().Err(err).Msg("fallback utterance failed")
		}
	}
	if s.opts.Target != nil {
		err := rep.OCRErr
		if err == nil {
			err = errors.New(rep.Fallback)
		}
		if ferr := s.opts.Target.OnFailure(err); ferr != nil {
			s.log.Warn().Err(ferr).Msg("result target failure hook")
		}
	}
	return rep
}

func (s *Sink) deliver(rep Report) {
	if s.opts.Target == nil || rep.Text == "" {
		return
	}
	if err := s.opts.Target.OnSuccess(rep.Text); err != nil {
		s.log.Warn().Err(err).Msg("result target rejected transcript")
	}
}

func (s *Sink) speak(ctx context.Context, text string) error {
	select {
	case err := <-s.opts.Speaker.Speak(ctx, text, tts.ModeAppend):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
