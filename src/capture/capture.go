// Package capture runs the screen grab in a helper process and waits for the
// handoff file it leaves behind.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"select2speak/src/logutil"
	"select2speak/src/screenshot"
)

var (
	// ErrNoScreenshot means no frame appeared before the timeout or the helper
	// failed.
	ErrNoScreenshot = errors.New("no screenshot")
	// ErrUndecodable means a frame file appeared but is not a readable image.
	ErrUndecodable = errors.New("screenshot could not be decoded")
)

// Launcher starts the out-of-process capture. The returned channel yields the
// helper's exit status exactly once.
type Launcher interface {
	Launch(ctx context.Context, dir string, index int) (<-chan error, error)
}

// ExecLauncher re-executes the current binary with the capture subcommand.
type ExecLauncher struct {
	Exe string
}

func (l ExecLauncher) Launch(ctx context.Context, dir string, index int) (<-chan error, error) {
	exe := l.Exe
	if exe == "" {
		p, err := os.Executable()
		if err != nil {
			return nil, err
		}
		exe = p
	}
	cmd := exec.CommandContext(ctx, exe, "capture", "--dir", dir, "--index", strconv.Itoa(index))
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		done <- err
	}()
	return done, nil
}

type Bridge struct {
	dir      string
	launcher Launcher
	timeout  time.Duration
	log      zerolog.Logger
}

func NewBridge(dir string, launcher Launcher, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{dir: dir, launcher: launcher, timeout: timeout, log: logutil.Component("capture")}
}

// Purge deletes every file in dir whose name mentions png, leaving at most
// the frame the next capture writes.
func Purge(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(strings.ToLower(e.Name()), "png") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			n++
		}
	}
	return n, nil
}

// Capture purges old frames, launches the helper and waits for frame 0.
func (b *Bridge) Capture(ctx context.Context) (image.Image, error) {
	const index = 0
	n, err := Purge(b.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoScreenshot, err)
	}
	b.log.Info().Int("deleted", n).Msg("purged previous captures")

	path := filepath.Join(b.dir, screenshot.FileName(index))
	if err := b.await(ctx, path, index); err != nil {
		return nil, err
	}

	img, err := imaging.Open(path)
	if err != nil {
		b.log.Error().Err(err).Str("file", path).Msg("frame not decodable")
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	b.log.Info().Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("frame loaded")
	return img, nil
}

func (b *Bridge) await(ctx context.Context, path string, index int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: watcher: %v", ErrNoScreenshot, err)
	}
	defer watcher.Close()
	// Armed before launch so the rename cannot be missed.
	if err := watcher.Add(b.dir); err != nil {
		return fmt.Errorf("%w: watch %s: %v", ErrNoScreenshot, b.dir, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	exited, err := b.launcher.Launch(ctx, b.dir, index)
	if err != nil {
		return fmt.Errorf("%w: launch: %v", ErrNoScreenshot, err)
	}

	events, errs := watcher.Events, watcher.Errors
	for {
		if fileReady(path) {
			return nil
		}
		select {
		case ev, ok := <-events:
			if !ok {
				return ErrNoScreenshot
			}
			if filepath.Base(ev.Name) == filepath.Base(path) && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				b.log.Debug().Str("event", ev.Op.String()).Msg("frame written")
			}
		case werr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.log.Warn().Err(werr).Msg("watcher error")
		case err := <-exited:
			if err != nil {
				return fmt.Errorf("%w: helper: %v", ErrNoScreenshot, err)
			}
			if fileReady(path) {
				return nil
			}
			exited = nil
		case <-ctx.Done():
			if fileReady(path) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrNoScreenshot, ctx.Err())
		}
	}
}

func fileReady(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}
