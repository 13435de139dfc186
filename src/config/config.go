package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	ConfigPathEnvVar  = "MANGA_SCREEN_OCR"

	defaultHotkey       = "Ctrl+Alt+Q"
	defaultKillKey      = "f12"
	defaultMacroLogName = "macro_events.json"
)

type LoadOptions struct {
	APIKeyPathOverride string
}

type Config struct {
	APIKey            string
	APIKeyPath        string
	Model             string
	Providers         []string
	EnableFileLogging bool
	Hotkey            string
	KillKey           string
	Engine            string
	PreprocessMode    string
	CaptureGeometry   string
	MacroEnabled      bool
	MacroEventsFile   string
	OCRDeadlineSec    int

	mu      sync.Mutex
	envPath string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithOptions reads configuration in priority order: a .env in the
// executable directory, else the file named by MANGA_SCREEN_OCR, else
// process environment only.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	var providers []string
	if providersStr := os.Getenv("PROVIDERS"); providersStr != "" {
		for _, provider := range strings.Split(providersStr, ",") {
			if trimmed := strings.TrimSpace(provider); trimmed != "" {
				providers = append(providers, trimmed)
			}
		}
	}

	ocrDeadlineSec := 20
	if v := os.Getenv("OCR_DEADLINE_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ocrDeadlineSec = n
		}
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		APIKey:            resolveAPIKey(apiKeyPath),
		APIKeyPath:        apiKeyPath,
		Model:             os.Getenv("MODEL"),
		Providers:         providers,
		EnableFileLogging: boolEnv("ENABLE_FILE_LOGGING"),
		Hotkey:            getEnvWithDefault("HOTKEY", defaultHotkey),
		KillKey:           getEnvWithDefault("KILL_KEY", defaultKillKey),
		Engine:            os.Getenv("OCR_ENGINE"),
		PreprocessMode:    os.Getenv("PREPROCESS_MODE"),
		CaptureGeometry:   os.Getenv("CAPTURE_GEOMETRY"),
		MacroEnabled:      boolEnv("MACRO_ENABLED"),
		MacroEventsFile:   os.Getenv("MACRO_EVENTS_FILE"),
		OCRDeadlineSec:    ocrDeadlineSec,
		envPath:           envPath,
	}

	return cfg, nil
}

// SaveGeometry persists the overlay geometry string across restarts.
func (c *Config) SaveGeometry(geometry string) error {
	c.CaptureGeometry = geometry
	return c.persist("CAPTURE_GEOMETRY", geometry)
}

// SaveEngine persists the selected recognition engine variant.
func (c *Config) SaveEngine(engine string) error {
	c.Engine = engine
	return c.persist("OCR_ENGINE", engine)
}

// SavePreprocessMode persists the preprocessing mode.
func (c *Config) SavePreprocessMode(mode string) error {
	c.PreprocessMode = mode
	return c.persist("PREPROCESS_MODE", mode)
}

// persist rewrites the backing .env with one key updated, keeping all other
// entries intact.
func (c *Config) persist(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.envPath
	if path == "" {
		path = defaultEnvPath()
		if path == "" {
			return fmt.Errorf("no writable config location")
		}
		c.envPath = path
	}

	values, err := godotenv.Read(path)
	if err != nil {
		values = map[string]string{}
	}
	values[key] = value
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

// MacroLogPath returns where the recorded macro log is stored.
func (c *Config) MacroLogPath() string {
	if c.MacroEventsFile != "" {
		return c.MacroEventsFile
	}
	if c.envPath != "" {
		return filepath.Join(filepath.Dir(c.envPath), defaultMacroLogName)
	}
	execPath, err := os.Executable()
	if err != nil {
		return defaultMacroLogName
	}
	return filepath.Join(filepath.Dir(execPath), defaultMacroLogName)
}

// SaveMacroLog writes a serialized macro event log to the configured path.
func (c *Config) SaveMacroLog(data []byte) error {
	return os.WriteFile(c.MacroLogPath(), data, 0o644)
}

// LoadMacroLog reads the stored macro event log. A missing file is not an
// error; it returns nil data.
func (c *Config) LoadMacroLog() ([]byte, error) {
	data, err := os.ReadFile(c.MacroLogPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func defaultEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(execPath), ".env")
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

func boolEnv(key string) bool {
	return strings.ToLower(os.Getenv(key)) == "true"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
