// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables win over the file; unparsable
// values fall back to the file value or the built-in default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	Media         MediaConfig         `yaml:"media"`
	STT           STTConfig           `yaml:"stt"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Index         IndexConfig         `yaml:"index"`
	QA            QAConfig            `yaml:"qa"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	Env         string `yaml:"env"`
	GRPCPort    string `yaml:"grpcPort"`
	HTTPPort    string `yaml:"httpPort"`
	MetricsPort string `yaml:"metricsPort"`

	// AllowedOrigins lists browser origins accepted on the websocket stream
	// besides the server's own host. "*" accepts any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type MediaConfig struct {
	UploadDir        string        `yaml:"uploadDir"`
	DownloadDir      string        `yaml:"downloadDir"`
	MaxDownloadBytes int64         `yaml:"maxDownloadBytes"`
	HTTPTimeout      time.Duration `yaml:"httpTimeout"`
	ExtractAudio     bool          `yaml:"extractAudio"`
}

type STTConfig struct {
	Provider      string `yaml:"provider"` // mock, google, openai
	LanguageCode  string `yaml:"languageCode"`
	SampleRateHz  int    `yaml:"sampleRateHz"`
	AudioEncoding string `yaml:"audioEncoding"`
	Model         string `yaml:"model"`
}

type SegmenterConfig struct {
	Window time.Duration `yaml:"window"`
	Clock  string        `yaml:"clock"` // duration, wallclock
}

type IndexConfig struct {
	Provider   string `yaml:"provider"` // hash, openai
	TopK       int    `yaml:"topK"`
	EmbedModel string `yaml:"embedModel"`
	Dimensions int    `yaml:"dimensions"`
}

type QAConfig struct {
	Provider         string  `yaml:"provider"` // extractive, openai
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	CondenseQuestion bool    `yaml:"condenseQuestion"`
}

type OpenAIConfig struct {
	APIKey  string        `yaml:"-"`
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"-"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicSession string   `yaml:"topicSession"`
	TopicAnswer  string   `yaml:"topicAnswer"`
	Principal    string   `yaml:"principal"`
}

type StoreConfig struct {
	TranscriptDB string `yaml:"transcriptDB"` // empty disables the transcript cache
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Defaults returns the built-in configuration.
func Defaults() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:   "svc-transcript-chat",
			Env:         "",
			GRPCPort:    "50051",
			HTTPPort:    "8080",
			MetricsPort: "9090",
		},
		Media: MediaConfig{
			UploadDir:        os.TempDir() + "/transcript-chat-uploads",
			DownloadDir:      os.TempDir() + "/transcript-chat",
			MaxDownloadBytes: 2 * 1024 * 1024 * 1024,
			HTTPTimeout:      30 * time.Minute,
			ExtractAudio:     false,
		},
		STT: STTConfig{
			Provider:      "mock",
			LanguageCode:  "en-US",
			SampleRateHz:  16000,
			AudioEncoding: "LINEAR16",
			Model:         "whisper-1",
		},
		Segmenter: SegmenterConfig{
			Window: 30 * time.Second,
			Clock:  "duration",
		},
		Index: IndexConfig{
			Provider:   "hash",
			TopK:       5,
			EmbedModel: "text-embedding-3-small",
			Dimensions: 256,
		},
		QA: QAConfig{
			Provider:         "extractive",
			Model:            "gpt-4o-mini",
			Temperature:      0,
			CondenseQuestion: true,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com",
			Timeout: 3 * time.Minute,
		},
		Redis: RedisConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			TopicSession: "transcript.chat.session",
			TopicAnswer:  "transcript.chat.answer",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration: defaults, then CONFIG_FILE (if set), then env.
// A broken config file is ignored with the defaults kept.
func Load() *Configuration {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		_ = cfg.mergeFile(path)
	}
	cfg.applyEnv()
	return cfg
}

// LoadFile is Load with an explicit config file whose errors are reported.
func LoadFile(path string) (*Configuration, error) {
	cfg := Defaults()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Configuration) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Configuration) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.Env = envOrDefault("ENV", c.Service.Env)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.MetricsPort = envOrDefault("METRICS_PORT", c.Service.MetricsPort)
	c.Service.AllowedOrigins = envOrDefaultList("HTTP_ALLOWED_ORIGINS", c.Service.AllowedOrigins)

	c.Media.UploadDir = envOrDefault("MEDIA_UPLOAD_DIR", c.Media.UploadDir)
	c.Media.DownloadDir = envOrDefault("MEDIA_DOWNLOAD_DIR", c.Media.DownloadDir)
	c.Media.MaxDownloadBytes = envOrDefaultInt64("MEDIA_MAX_DOWNLOAD_BYTES", c.Media.MaxDownloadBytes)
	c.Media.HTTPTimeout = envOrDefaultDuration("MEDIA_HTTP_TIMEOUT", c.Media.HTTPTimeout)
	c.Media.ExtractAudio = envOrDefaultBool("MEDIA_EXTRACT_AUDIO", c.Media.ExtractAudio)

	c.STT.Provider = envOrDefault("STT_PROVIDER", c.STT.Provider)
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", c.STT.SampleRateHz)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)
	c.STT.Model = envOrDefault("STT_MODEL", c.STT.Model)

	c.Segmenter.Window = envOrDefaultDuration("SEGMENT_WINDOW", c.Segmenter.Window)
	c.Segmenter.Clock = envOrDefault("SEGMENT_CLOCK", c.Segmenter.Clock)

	c.Index.Provider = envOrDefault("INDEX_PROVIDER", c.Index.Provider)
	c.Index.TopK = envOrDefaultInt("INDEX_TOP_K", c.Index.TopK)
	c.Index.EmbedModel = envOrDefault("INDEX_EMBED_MODEL", c.Index.EmbedModel)
	c.Index.Dimensions = envOrDefaultInt("INDEX_DIMENSIONS", c.Index.Dimensions)

	c.QA.Provider = envOrDefault("QA_PROVIDER", c.QA.Provider)
	c.QA.Model = envOrDefault("QA_MODEL", c.QA.Model)
	c.QA.Temperature = envOrDefaultFloat("QA_TEMPERATURE", c.QA.Temperature)
	c.QA.CondenseQuestion = envOrDefaultBool("QA_CONDENSE_QUESTION", c.QA.CondenseQuestion)

	c.OpenAI.APIKey = strings.TrimSpace(envOrDefault("OPENAI_API_KEY", c.OpenAI.APIKey))
	c.OpenAI.BaseURL = strings.TrimRight(envOrDefault("OPENAI_BASE_URL", c.OpenAI.BaseURL), "/")
	c.OpenAI.Timeout = envOrDefaultDuration("OPENAI_TIMEOUT", c.OpenAI.Timeout)

	c.Redis.Addr = envOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envOrDefaultInt("REDIS_DB", c.Redis.DB)
	c.Redis.TTL = envOrDefaultDuration("REDIS_EMBEDDING_TTL", c.Redis.TTL)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.TopicSession = envOrDefault("KAFKA_TOPIC_SESSION", c.Kafka.TopicSession)
	c.Kafka.TopicAnswer = envOrDefault("KAFKA_TOPIC_ANSWER", c.Kafka.TopicAnswer)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Store.TranscriptDB = envOrDefault("TRANSCRIPT_DB", c.Store.TranscriptDB)

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
