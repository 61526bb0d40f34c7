package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Model sources.
const (
	SourceFile   = "file"
	SourceAsset  = "asset"
	SourceStream = "stream"
)

type Config struct {
	Addr string

	ModelPath    string
	ModelSource  string
	AssetDir     string
	ModelsDir    string
	ModelVariant string
	UseGPU       bool
	Threads      int
	Language     string

	LogLevel  string
	LogFormat string

	TranslationBaseURL    string
	TranslationEnabled    bool
	TranslationTimeoutSec int

	// TranslationAlternatives is how many alternatives to request per target; 0 asks for none.
	TranslationAlternatives int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Load reads the configuration from the environment. A .env file in the
// working directory, if present, fills in variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	source := strings.ToLower(getenv("WHISPER_MODEL_SOURCE", SourceFile))
	switch source {
	case SourceFile, SourceAsset, SourceStream:
	default:
		source = SourceFile
	}

	alternatives := getenvInt("TRANSLATION_ALTERNATIVES", 0)
	if alternatives < 0 {
		alternatives = 0
	}

	threads := getenvInt("WHISPER_THREADS", 4)
	if threads < 1 {
		threads = 1
	}

	return Config{
		Addr:                  getenv("WHISPER_GO_ADDR", ":8080"),
		ModelPath:             getenv("WHISPER_MODEL_PATH", ""),
		ModelSource:           source,
		AssetDir:              getenv("WHISPER_ASSET_DIR", "./assets"),
		ModelsDir:             getenv("WHISPER_MODELS_DIR", "./models"),
		ModelVariant:          getenv("WHISPER_MODEL_VARIANT", "base"),
		UseGPU:                getenvBool("WHISPER_USE_GPU", false),
		Threads:               threads,
		Language:              getenv("WHISPER_LANGUAGE", "auto"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		LogFormat:             getenv("LOG_FORMAT", "console"),
		TranslationBaseURL:    getenv("TRANSLATION_BASE_URL", "https://libretranslate.obiente.cloud"),
		TranslationEnabled:    getenvBool("WHISPER_SERVER_TRANSLATIONS", true),
		TranslationTimeoutSec: getenvInt("TRANSLATION_TIMEOUT", 8),

		TranslationAlternatives: alternatives,
	}
}
