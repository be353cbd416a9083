package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"select2speak/src/capture"
	"select2speak/src/clipboard"
	"select2speak/src/config"
	"select2speak/src/eventloop"
	"select2speak/src/gesture"
	"select2speak/src/gui"
	"select2speak/src/hotkey"
	"select2speak/src/logutil"
	"select2speak/src/narrate"
	"select2speak/src/notification"
	"select2speak/src/ocr"
	"select2speak/src/overlay"
	"select2speak/src/phrases"
	"select2speak/src/screenshot"
	"select2speak/src/session"
	"select2speak/src/singleinstance"
	"select2speak/src/storage"
	"select2speak/src/tts"
	"select2speak/src/worker"
)

const appID = "io.github.select2speak"

type mainOptions struct {
	envPath    string
	ocrEngine  string
	locale     string
	storageDir string
	verbose    bool

	captureDir   string
	captureIndex int
}

func main() {
	// fyne needs the main goroutine on the main thread.
	runtime.LockOSThread()
	enableDPIAwareness()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "select2speak",
		Short:         "Select a screen region and hear its text",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(*opts, false)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.envPath, "env", "", "Path to .env file")
	pf.StringVar(&opts.ocrEngine, "ocr-engine", "", "OCR engine: tesseract, vision or llm")
	pf.StringVar(&opts.locale, "locale", "", "Speech and phrase locale, e.g. en or it")
	pf.StringVar(&opts.storageDir, "storage-dir", "", "Directory for captures and logs")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	cmd.AddCommand(newCaptureCmd(opts), newDelegateCmd(opts, singleinstance.CmdStart), newDelegateCmd(opts, singleinstance.CmdStop))
	return cmd
}

// newCaptureCmd is the helper the resident launches for every capture.
func newCaptureCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "capture",
		Short:  "Grab the screen into <dir>/<index>.png",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := screenshot.WriteFrame(screenshot.Capture, opts.captureDir, opts.captureIndex)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.captureDir, "dir", "", "Target directory")
	cmd.Flags().IntVar(&opts.captureIndex, "index", 0, "Frame index")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func newDelegateCmd(opts *mainOptions, command singleinstance.Command) *cobra.Command {
	name := strings.ToLower(string(command))
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Send %s to the running instance", command),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env early so SINGLEINSTANCE_PORT_* are applied before the scan.
			_, _ = config.LoadWithOptions(loadOptions(*opts))
			var fallback func() error
			if command == singleinstance.CmdStart {
				fallback = func() error { return runResident(*opts, true) }
			}
			return delegate(cmd.Context(), cmd.OutOrStdout(), singleinstance.NewClient(), command, fallback)
		},
	}
	return cmd
}

// delegate sends command to a running resident. With no resident, fallback
// runs in-process when set.
func delegate(ctx context.Context, out io.Writer, client singleinstance.Client, command singleinstance.Command, fallback func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delegated, text, err := client.Send(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(string(command)), err)
	}
	if delegated {
		if text != "" {
			fmt.Fprintln(out, text)
		}
		return nil
	}
	if fallback == nil {
		fmt.Fprintln(out, "no running instance")
		return nil
	}
	return fallback()
}

func loadOptions(opts mainOptions) config.LoadOptions {
	return config.LoadOptions{
		EnvPathOverride:    opts.envPath,
		OCREngineOverride:  opts.ocrEngine,
		LocaleOverride:     opts.locale,
		StorageDirOverride: opts.storageDir,
	}
}

func runResident(opts mainOptions, startNow bool) error {
	cfg, err := config.LoadWithOptions(loadOptions(opts))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if port, ok := singleinstance.DetectResidentPort(context.Background()); ok {
		return fmt.Errorf("one is already running on port %d", port)
	}

	dir, err := storage.Ensure(cfg.StorageDir)
	if err != nil {
		notification.ShowBlockingError("select2speak", fmt.Sprintf("Storage unavailable: %v", err))
		return err
	}

	level := cfg.LogLevel
	if opts.verbose {
		level = zerolog.DebugLevel.String()
	}
	closer, err := logutil.Setup(logutil.Options{
		Dir:         dir.Root,
		Level:       level,
		FileLogging: cfg.EnableFileLogging,
		Console:     true,
	})
	defer closer.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "file logging disabled: %v\n", err)
	}
	log := logutil.Component("main")
	logStartup(log, cfg, dir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rec := newRecognizer(ctx, log, cfg)
	defer rec.Close()
	checkStorage(log, dir, cfg.LowStorageMB)

	synth, closeSynth := newSynthesizer(log, cfg)
	defer closeSynth()
	queue := tts.NewQueue(synth)
	defer queue.Close()

	book := phrases.For(cfg.Locale)
	sink := narrate.New(narrate.Options{
		Recognizer:     rec,
		Speaker:        queue,
		Phrases:        book,
		RemoveNewlines: cfg.RemoveNewlines,
		Target:         transcriptTarget(log, cfg),
	})

	a := app.NewWithID(appID)
	var loop *eventloop.Loop
	win := gui.New(a, gui.Callbacks{
		OnStart:   func() { loop.RequestStart() },
		OnStop:    func() { loop.RequestStop() },
		OnPointer: func(ev gesture.Event) { loop.Pointer(ev) },
		OnQuit:    cancel,
	})
	win.InstallTray()
	notification.SetBackend(win)
	defer notification.SetBackend(nil)

	loop = eventloop.New(eventloop.Options{
		Session:           session.New(),
		Tracker:           gesture.NewTracker(logutil.Component("gesture"), cfg.VerboseTouch),
		Overlay:           overlay.NewController(win),
		Capturer:          capture.NewBridge(dir.Captures(), capture.ExecLauncher{}, time.Duration(cfg.CaptureTimeoutSec)*time.Second),
		Pool:              worker.New(sink, 1),
		Speaker:           queue,
		Phrases:           book,
		Server:            singleinstance.NewServer(),
		NarrationDeadline: time.Duration(cfg.NarrationDeadlineSec) * time.Second,
		Welcome:           cfg.WelcomeMessage,
	})

	if err := hotkey.Listen(ctx,
		hotkey.Binding{Combo: cfg.Hotkey, Fire: loop.RequestStart},
		hotkey.Binding{Combo: cfg.StopHotkey, Fire: loop.RequestStop},
	); err != nil {
		log.Warn().Err(err).Msg("global hotkeys disabled")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event loop stopped")
		}
		fyne.Do(a.Quit)
	}()
	if startNow {
		loop.RequestStart()
	}

	a.Run()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("event loop did not stop in time")
	}
	log.Info().Msg("exiting")
	return nil
}

func logStartup(log zerolog.Logger, cfg *config.Config, dir *storage.Dir) {
	ev := log.Info().
		Str("storage", dir.Root).
		Str("ocr_engine", cfg.OCREngine).
		Str("tts_engine", cfg.TTSEngine).
		Str("locale", cfg.Locale).
		Str("hotkey", cfg.Hotkey).
		Str("stop_hotkey", cfg.StopHotkey)
	if cfg.OCREngine == config.EngineLLM {
		ev = ev.Str("model", cfg.Model).Str("api_key", logutil.RedactKey(cfg.APIKey))
	}
	if vb, err := screenshot.VirtualBounds(); err == nil {
		ev = ev.Str("virtual_screen", vb.String())
	}
	ev.Msg("select2speak starting")
}

// newEngine is replaced in tests.
var newEngine = ocr.New

// newRecognizer never fails: an engine that cannot start is replaced by one
// that reports ErrNotReady, so selections still get the "no text" phrase.
// An engine that starts but fails its probe is kept, since it may become
// ready later.
func newRecognizer(ctx context.Context, log zerolog.Logger, cfg *config.Config) ocr.Recognizer {
	rec, err := newEngine(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("engine", cfg.OCREngine).Msg("OCR engine failed to initialize")
		return ocr.Unavailable(err)
	}
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := rec.Probe(probeCtx); err != nil {
		log.Error().Err(err).Str("engine", cfg.OCREngine).Msg("OCR engine not operational")
	}
	return rec
}

func checkStorage(log zerolog.Logger, dir *storage.Dir, thresholdMB int) {
	low, free, err := dir.LowSpace(thresholdMB)
	switch {
	case err != nil:
		log.Debug().Err(err).Msg("free space unknown")
	case low:
		log.Warn().Uint64("free_mb", free/(1024*1024)).Int("threshold_mb", thresholdMB).Msg("low storage")
		notification.Show("select2speak", "Low storage: OCR data may fail to load")
	}
}

func newSynthesizer(log zerolog.Logger, cfg *config.Config) (tts.Synthesizer, func()) {
	if cfg.TTSEngine == config.TTSPortAudio {
		s, err := tts.NewAudioSynth(exec.LookPath, cfg.Locale, cfg.TTSRate)
		if err == nil {
			return s, func() { _ = s.Close() }
		}
		log.Warn().Err(err).Msg("portaudio synthesizer unavailable, trying exec")
	}
	s, err := tts.DetectExec(exec.LookPath, cfg.TTSCommand, cfg.Locale, cfg.TTSRate)
	if err != nil {
		log.Error().Err(err).Msg("no speech synthesizer found, utterances will only be logged")
		return logSynth{log: log}, func() {}
	}
	log.Info().Str("command", s.Path).Msg("speech synthesizer")
	return s, func() {}
}

// logSynth stands in when no synthesizer exists on the host.
type logSynth struct{ log zerolog.Logger }

func (s logSynth) Say(_ context.Context, text string) error {
	s.log.Warn().Str("text", logutil.Preview(text, 100)).Msg("unspoken utterance")
	return nil
}

func transcriptTarget(log zerolog.Logger, cfg *config.Config) narrate.ResultTarget {
	if !cfg.CopyToClipboard {
		return nil
	}
	if err := clipboard.Init(); err != nil {
		log.Warn().Err(err).Msg("clipboard unavailable, transcript not copied")
		return nil
	}
	return narrate.ClipboardTarget{}
}

// normalizeLegacyArgs maps single-dash long flags (-env) to cobra's --env.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	long := []string{"env", "ocr-engine", "locale", "storage-dir", "verbose", "dir", "index"}
	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		name, _, _ := strings.Cut(arg[1:], "=")
		for _, l := range long {
			if name == l {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}
