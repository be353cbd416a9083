package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"select2speak/src/config"
	"select2speak/src/logutil"
	"select2speak/src/narrate"
	"select2speak/src/ocr"
	"select2speak/src/phrases"
	"select2speak/src/region"
	"select2speak/src/tts"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	filePath   string
	rect       string
	jsonOutput bool
	speak      bool
	verbose    bool
	envPath    string
	ocrEngine  string
	apiKeyPath string
	locale     string
}

// streams lets tests capture output.
type streams struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// newRecognizer is replaced in tests.
var newRecognizer = ocr.New

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(os.Args, streams{in: os.Stdin, out: os.Stdout, errOut: os.Stderr})
}

func runWithArgs(args []string, s streams) error {
	if len(args) == 0 {
		args = []string{"ocr-tool"}
	}

	args = normalizeLegacyArgs(args)

	opts := &cliOptions{}
	cmd := newRootCmd(opts, s)
	cmd.SetArgs(args[1:])
	cmd.SetOut(s.out)
	cmd.SetErr(s.errOut)
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions, s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ocr-tool",
		Short:         "Recognize, and optionally speak, the text in a PNG",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, s)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVar(&opts.rect, "rect", "", "Selection corners x0,y0,x1,y1 in image pixels")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&opts.speak, "speak", false, "Read the recognized blocks aloud")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to .env file")
	cmd.Flags().StringVar(&opts.ocrEngine, "ocr-engine", "", "OCR engine: tesseract, vision or llm")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.locale, "locale", "", "Speech and phrase locale")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, s streams) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	// Console logging goes to stderr only, so stdout carries nothing but the result.
	closer, _ := logutil.Setup(logutil.Options{Level: level, Console: opts.verbose})
	defer closer.Close()
	log := logutil.Component("cli")

	cfg, err := config.LoadWithOptions(config.LoadOptions{
		EnvPathOverride:    opts.envPath,
		APIKeyPathOverride: opts.apiKeyPath,
		OCREngineOverride:  opts.ocrEngine,
		LocaleOverride:     opts.locale,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Debug().Str("engine", cfg.OCREngine).Str("api_key_path", cfg.APIKeyPath).Msg("config loaded")
	if cfg.OCREngine == config.EngineLLM {
		if cfg.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY not found. Checked key file %s and OPENROUTER_API_KEY env var", cfg.APIKeyPath)
		}
		if cfg.Model == "" {
			return fmt.Errorf("MODEL is required in .env file")
		}
		log.Debug().Str("model", cfg.Model).Str("api_key", truncateSecret(cfg.APIKey, 8)).Msg("llm engine")
	}

	data, err := readInput(opts.filePath, s.in)
	if err != nil {
		return err
	}
	if err := validatePNG(data); err != nil {
		return err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode PNG: %w", err)
	}
	log.Debug().Int("bytes", len(data)).Str("bounds", img.Bounds().String()).Msg("image read")

	crop, err := applyRect(img, opts.rect)
	if err != nil {
		return err
	}

	rec, err := newRecognizer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("OCR engine unavailable: %w", err)
	}
	defer rec.Close()

	if opts.speak {
		return speak(ctx, cfg, rec, crop, s.out)
	}
	return performOCR(ctx, rec, crop, opts.filePath, opts.jsonOutput, s.out)
}

func readInput(filePath string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if filePath == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return data, nil
}

func validatePNG(data []byte) error {
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

// applyRect crops img to the corners, which may be given in any
// order. An empty value keeps the whole image.
func applyRect(img image.Image, corners string) (image.Image, error) {
	if strings.TrimSpace(corners) == "" {
		return img, nil
	}
	parts := strings.Split(corners, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("--rect wants x0,y0,x1,y1, got %q", corners)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("--rect: %q is not an integer", p)
		}
		v[i] = max(n, 0)
	}
	crop, _ := region.Extract(img, image.Pt(v[0], v[1]), image.Pt(v[2], v[3]))
	return crop, nil
}

// truncateSecret safely truncates a secret for display, showing only first N characters.
func truncateSecret(secret string, maxLen int) string {
	if len(secret) <= maxLen {
		return secret + "..."
	}
	return secret[:maxLen] + "..."
}

type OCRResult struct {
	Text      string      `json:"text"`
	Blocks    []ocr.Block `json:"blocks"`
	Source    string      `json:"source"`
	Timestamp string      `json:"timestamp"`
	Duration  float64     `json:"duration_seconds"`
	CharCount int         `json:"character_count"`
}

func performOCR(ctx context.Context, rec ocr.Recognizer, img image.Image, source string, jsonOutput bool, out io.Writer) error {
	var blocks []ocr.Block
	start := time.Now()
	if !img.Bounds().Empty() {
		var err error
		blocks, err = rec.Recognize(ctx, img)
		if err != nil {
			return fmt.Errorf("OCR failed: %w", err)
		}
	}
	elapsed := time.Since(start)

	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			texts = append(texts, t)
		}
	}
	text := strings.Join(texts, "\n\n")

	if !jsonOutput {
		_, err := fmt.Fprint(out, text)
		return err
	}
	if blocks == nil {
		blocks = []ocr.Block{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(OCRResult{
		Text:      text,
		Blocks:    blocks,
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		CharCount: len([]rune(text)),
	}); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// speak narrates img exactly as the resident would and prints the spoken
// transcript.
func speak(ctx context.Context, cfg *config.Config, rec ocr.Recognizer, img image.Image, out io.Writer) error {
	synth, err := tts.DetectExec(exec.LookPath, cfg.TTSCommand, cfg.Locale, cfg.TTSRate)
	if err != nil {
		return fmt.Errorf("no speech synthesizer: %w", err)
	}
	queue := tts.NewQueue(synth)
	defer queue.Close()
	return narrateTo(ctx, cfg, rec, queue, img, out)
}

func narrateTo(ctx context.Context, cfg *config.Config, rec ocr.Recognizer, speaker tts.Speaker, img image.Image, out io.Writer) error {
	sink := narrate.New(narrate.Options{
		Recognizer:     rec,
		Speaker:        speaker,
		Phrases:        phrases.For(cfg.Locale),
		RemoveNewlines: cfg.RemoveNewlines,
		Target:         narrate.StdoutTarget{Writer: out},
	})
	rep := sink.Narrate(ctx, img)
	if rep.OCRErr != nil {
		return fmt.Errorf("OCR failed: %w", rep.OCRErr)
	}
	return nil
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	long := []string{"file", "rect", "json", "speak", "verbose", "env", "ocr-engine", "api-key-path", "locale"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") || arg == "-" {
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
