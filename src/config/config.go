package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	EnvPathEnvVar     = "SELECT2SPEAK_ENV"
	AppDirName        = "select2speak"

	EngineTesseract = "tesseract"
	EngineVision    = "vision"
	EngineLLM       = "llm"

	TTSExec      = "exec"
	TTSPortAudio = "portaudio"
)

type LoadOptions struct {
	EnvPathOverride    string
	APIKeyPathOverride string
	OCREngineOverride  string
	LocaleOverride     string
	StorageDirOverride string
}

type Config struct {
	StorageDir        string
	EnableFileLogging bool
	LogLevel          string

	Hotkey     string
	StopHotkey string

	OCREngine      string
	OCRLanguage    string
	OCRDeadlineSec int

	APIKey     string
	APIKeyPath string
	Model      string
	Providers  []string

	TTSEngine      string
	TTSCommand     string
	TTSRate        int
	Locale         string
	RemoveNewlines bool

	CaptureTimeoutSec    int
	NarrationDeadlineSec int

	WelcomeMessage  string
	CopyToClipboard bool
	VerboseTouch    bool
	LowStorageMB    int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order:
	// 1) explicit --env path
	// 2) .env next to the executable
	// 3) SELECT2SPEAK_ENV as a path to a config file
	envPath := resolveEnvPath(opts)
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		StorageDir:        firstNonEmpty(opts.StorageDirOverride, getEnvWithDefault("STORAGE_DIR", filepath.Join(xdg.DataHome, AppDirName))),
		EnableFileLogging: getEnvBool("ENABLE_FILE_LOGGING", true),
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),

		Hotkey:     getEnvWithDefault("HOTKEY", "Ctrl+Alt+S"),
		StopHotkey: getEnvWithDefault("STOP_HOTKEY", "Ctrl+Alt+X"),

		OCREngine:      resolveEngine(firstNonEmpty(opts.OCREngineOverride, os.Getenv("OCR_ENGINE"))),
		OCRLanguage:    getEnvWithDefault("OCR_LANGUAGE", "eng"),
		OCRDeadlineSec: getEnvInt("OCR_DEADLINE_SEC", 20),

		APIKey:     resolveAPIKey(apiKeyPath),
		APIKeyPath: apiKeyPath,
		Model:      os.Getenv("MODEL"),
		Providers:  splitList(os.Getenv("PROVIDERS")),

		TTSEngine:      resolveTTSEngine(os.Getenv("TTS_ENGINE")),
		TTSCommand:     strings.TrimSpace(os.Getenv("TTS_COMMAND")),
		TTSRate:        getEnvInt("TTS_RATE", 160),
		Locale:         firstNonEmpty(opts.LocaleOverride, getEnvWithDefault("TTS_LOCALE", "en")),
		RemoveNewlines: getEnvBool("REMOVE_NEWLINES", true),

		CaptureTimeoutSec:    getEnvInt("CAPTURE_TIMEOUT_SEC", 5),
		NarrationDeadlineSec: getEnvInt("NARRATION_DEADLINE_SEC", 120),

		WelcomeMessage:  strings.TrimSpace(os.Getenv("WELCOME_MESSAGE")),
		CopyToClipboard: getEnvBool("COPY_TO_CLIPBOARD", false),
		VerboseTouch:    getEnvBool("VERBOSE_TOUCH", false),
		LowStorageMB:    getEnvInt("LOW_STORAGE_MB", 200),
	}

	return cfg, nil
}

func resolveEnvPath(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.EnvPathOverride); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv("OPENROUTER_API_KEY")
}

func resolveEngine(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case EngineVision, "google":
		return EngineVision
	case EngineLLM, "openrouter":
		return EngineLLM
	default:
		return EngineTesseract
	}
}

func resolveTTSEngine(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), TTSPortAudio) {
		return TTSPortAudio
	}
	return TTSExec
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// getEnvInt ignores non-positive and malformed values.
func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
