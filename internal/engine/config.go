package engine

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	// Acquisition
	Offline              bool
	EnableBrowserCookies bool
	Cookies              string   // explicit credential: cookies.txt path or raw Cookie header
	Browsers             []string // yt-dlp --cookies-from-browser sources, tried in order
	YtDlpBin             string
	DownloadDir          string
	StrategyTimeout      time.Duration

	// Transcription
	Transcriber            string // "assemblyai" or "whisper"
	AssemblyAIKey          string
	AssemblyAIPollInterval time.Duration
	TranscribeTimeout      time.Duration
	TranscribeExpected     time.Duration // pacing of the estimated progress ramp
	WhisperBin             string
	WhisperModel           string
	WhisperThreads         int
	FFmpegBin              string

	// Published captions shortcut
	CaptionsFirst bool
	CaptionLangs  []string

	// Transcript store
	CacheBackend    string
	CacheDir        string
	SQLitePath      string
	DatabaseURL     string
	S3Bucket        string
	DynamoTable     string
	RedisURL        string
	CacheMaxEntries int
	CacheTTL        time.Duration

	// Question answering
	LLMAPIKey       string
	LLMAPIBase      string
	LLMModel        string
	LLMTemperature  float64
	LLMMaxTokens    int
	LLMRateInterval time.Duration
	MaxContextChars int

	HTTPClient *http.Client
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages.
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = DefaultHTTPClient()
	}
	cfg = c
	Cfg = &cfg
}

// DefaultHTTPClient is the pooled client shared by scrapers and API calls.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() Config {
	return Config{
		Offline:              envBool("OFFLINE", false),
		EnableBrowserCookies: envBool("ENABLE_BROWSER_COOKIES", false),
		Cookies:              env.Str("YT_COOKIES", ""),
		Browsers:             env.List("BROWSER_COOKIES", "chrome,firefox"),
		YtDlpBin:             env.Str("YTDLP_BIN", "yt-dlp"),
		DownloadDir:          env.Str("DOWNLOAD_DIR", "audio_downloads"),
		StrategyTimeout:      env.Duration("STRATEGY_TIMEOUT", 10*time.Minute),

		Transcriber:            strings.ToLower(env.Str("TRANSCRIBER", "assemblyai")),
		AssemblyAIKey:          env.Str("ASSEMBLYAI_API_KEY", ""),
		AssemblyAIPollInterval: env.Duration("ASSEMBLYAI_POLL_INTERVAL", 3*time.Second),
		TranscribeTimeout:      env.Duration("TRANSCRIBE_TIMEOUT", 30*time.Minute),
		TranscribeExpected:     env.Duration("TRANSCRIBE_EXPECTED", 2*time.Minute),
		WhisperBin:             env.Str("WHISPER_BIN", "whisper-cli"),
		WhisperModel:           env.Str("WHISPER_MODEL", "models/ggml-base.en.bin"),
		WhisperThreads:         env.Int("WHISPER_THREADS", 4),
		FFmpegBin:              env.Str("FFMPEG_BIN", "ffmpeg"),

		CaptionsFirst: envBool("CAPTIONS_FIRST", false),
		CaptionLangs:  env.List("CAPTION_LANGS", "en"),

		CacheBackend:    strings.ToLower(env.Str("CACHE_BACKEND", "file")),
		CacheDir:        env.Str("CACHE_DIR", "transcript_cache"),
		SQLitePath:      env.Str("SQLITE_PATH", "transcripts.db"),
		DatabaseURL:     env.Str("DATABASE_URL", ""),
		S3Bucket:        env.Str("S3_BUCKET", ""),
		DynamoTable:     env.Str("DYNAMODB_TABLE", ""),
		RedisURL:        env.Str("REDIS_URL", ""),
		CacheMaxEntries: env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheTTL:        env.Duration("CACHE_TTL", 24*time.Hour),

		LLMAPIKey:       env.Str("LLM_API_KEY", env.Str("OPENAI_API_KEY", "")),
		LLMAPIBase:      env.Str("LLM_API_BASE", "https://api.openai.com/v1"),
		LLMModel:        env.Str("LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature:  env.Float("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:    env.Int("LLM_MAX_TOKENS", 2048),
		LLMRateInterval: env.Duration("LLM_RATE_INTERVAL", 5*time.Second),
		MaxContextChars: env.Int("MAX_CONTEXT_CHARS", 60000),
	}
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(env.Str(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
