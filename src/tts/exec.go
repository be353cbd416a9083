package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

var ErrNoSynthesizer = errors.New("tts: no speech synthesizer found (install espeak-ng, espeak or speech-dispatcher)")

const sapiScript = `Add-Type -AssemblyName System.Speech; ` +
	`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; ` +
	`$s.Speak([Console]::In.ReadToEnd())`

// ExecSynth speaks by running an external command once per utterance.
// Cancelling the context kills the process, which cuts speech immediately.
type ExecSynth struct {
	Path  string
	Args  []string
	Stdin bool
}

func (s *ExecSynth) Say(ctx context.Context, text string) error {
	args := append([]string(nil), s.Args...)
	cmd := exec.CommandContext(ctx, s.Path, args...)
	if s.Stdin {
		cmd.Stdin = strings.NewReader(text)
	} else {
		cmd.Args = append(cmd.Args, text)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", s.Path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Voice maps a BCP 47 locale to the base language code espeak and
// speech-dispatcher accept.
func Voice(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}

type candidate struct {
	name  string
	args  []string
	stdin bool
}

// DetectExec picks the first available synthesizer. A non-empty command is
// used verbatim with the utterance appended as the last argument.
func DetectExec(lookPath func(string) (string, error), command, locale string, rate int) (*ExecSynth, error) {
	if fields := strings.Fields(command); len(fields) > 0 {
		p, err := lookPath(fields[0])
		if err != nil {
			return nil, fmt.Errorf("TTS_COMMAND %q: %w", fields[0], err)
		}
		return &ExecSynth{Path: p, Args: fields[1:]}, nil
	}

	voice := Voice(locale)
	r := strconv.Itoa(rate)
	candidates := []candidate{
		{"espeak-ng", []string{"-v", voice, "-s", r}, false},
		{"espeak", []string{"-v", voice, "-s", r}, false},
		{"spd-say", []string{"-w", "-l", voice}, false},
	}
	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates, candidate{"say", []string{"-r", r}, false})
	case "windows":
		candidates = append(candidates, candidate{"powershell", []string{"-NoProfile", "-NonInteractive", "-Command", sapiScript}, true})
	}

	for _, c := range candidates {
		if p, err := lookPath(c.name); err == nil {
			return &ExecSynth{Path: p, Args: c.args, Stdin: c.stdin}, nil
		}
	}
	return nil, ErrNoSynthesizer
}
