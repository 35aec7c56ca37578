package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "TRACKPUBLISHER_CONFIG"
	channelNameEnv     = "CHANNEL_NAME"
	stateDirEnv        = "STATE_DIR"
	logLevelEnv        = "LOG_LEVEL"
	logFormatEnv       = "LOG_FORMAT"
	catalogAPIKeyEnv   = "YOUTUBE_API_KEY"
	clientIDEnv        = "YT_CLIENT_ID"
	clientSecretEnv    = "YT_CLIENT_SECRET"
	refreshTokenEnv    = "YT_REFRESH_TOKEN"
	privacyEnv         = "VIDEO_PRIVACY"
	databaseDSNEnv     = "DATABASE_DSN"
	chatGPTAPIKeyEnv   = "CHATGPT_API_KEY"
	chatGPTModelEnv    = "CHATGPT_MODEL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	archiveBucketEnv   = "ARCHIVE_BUCKET"
	eventsBrokersEnv   = "KAFKA_BROKERS"
	defaultChunkSize   = 10 * 1024 * 1024
	defaultMaxRetries  = 10
	defaultMinDownload = 50 * 1024
)

// Config holds every setting the publisher needs.
type Config struct {
	Channel       ChannelConfig      `yaml:"channel"`
	Logging       LoggingConfig      `yaml:"logging"`
	State         StateConfig        `yaml:"state"`
	Workspace     WorkspaceConfig    `yaml:"workspace"`
	Catalog       CatalogConfig      `yaml:"catalog"`
	Selection     SelectionConfig    `yaml:"selection"`
	Buckets       []BucketConfig     `yaml:"buckets"`
	// UploadTypes advances one entry per full pass over Buckets.
	UploadTypes   []string           `yaml:"uploadTypes"`
	Download      DownloadConfig     `yaml:"download"`
	Audio         AudioConfig        `yaml:"audio"`
	Render        RenderConfig       `yaml:"render"`
	Publish       PublishConfig      `yaml:"publish"`
	Policy        PolicyConfig       `yaml:"policy"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Archive       ArchiveConfig      `yaml:"archive"`
	Events        EventsConfig       `yaml:"events"`
	Notifications NotificationConfig `yaml:"notifications"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
}

// ChannelConfig names the publishing channel shown in captions and descriptions.
type ChannelConfig struct {
	Name string `yaml:"name"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StateConfig points at the directory holding state.json and its lock.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// WorkspaceConfig is the parent of per-cycle scratch directories.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"`
}

// CatalogConfig describes the catalog API.
type CatalogConfig struct {
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseUrl"`
	Category    string        `yaml:"category"`
	RankedLimit int           `yaml:"rankedLimit"`
	SearchLimit int           `yaml:"searchLimit"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SelectionConfig holds the exclusion rules applied to catalog results.
type SelectionConfig struct {
	MaxCandidates int           `yaml:"maxCandidates"`
	MinDuration   time.Duration `yaml:"minDuration"`
	MaxDuration   time.Duration `yaml:"maxDuration"`
	Blocklist     []string      `yaml:"blocklist"`
}

// BucketConfig is one rotation bucket.
type BucketConfig struct {
	Name       string   `yaml:"name"`
	Region     string   `yaml:"region"`
	Category   string   `yaml:"category"`
	Source     string   `yaml:"source"`
	ChartURL   string   `yaml:"chartUrl"`
	Queries    []string `yaml:"queries"`
	PlaylistID string   `yaml:"playlistId"`
}

// VariantConfig is one downloader access strategy.
type VariantConfig struct {
	Client string `yaml:"client"`
	Format string `yaml:"format"`
}

// DownloadConfig configures the raw media downloader.
type DownloadConfig struct {
	Binary         string          `yaml:"binary"`
	CookiesPath    string          `yaml:"cookiesPath"`
	MinCookieBytes int64           `yaml:"minCookieBytes"`
	MinBytes       int64           `yaml:"minBytes"`
	Variants       []VariantConfig `yaml:"variants"`
	Timeout        time.Duration   `yaml:"timeout"`
}

// AudioConfig configures the DSP chain.
type AudioConfig struct {
	FFmpeg       string        `yaml:"ffmpeg"`
	SlowFactor   float64       `yaml:"slowFactor"`
	ReverbRoom   float64       `yaml:"reverbRoom"`
	ReverbWet    float64       `yaml:"reverbWet"`
	TargetLUFS   float64       `yaml:"targetLufs"`
	FadeInSec    float64       `yaml:"fadeInSec"`
	FadeOutSec   float64       `yaml:"fadeOutSec"`
	CrossfadeSec float64       `yaml:"crossfadeSec"`
	Timeout      time.Duration `yaml:"timeout"`
}

// RenderConfig configures video and thumbnail rendering.
type RenderConfig struct {
	FFmpeg      string        `yaml:"ffmpeg"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	FPS         int           `yaml:"fps"`
	ThumbWidth  int           `yaml:"thumbWidth"`
	ThumbHeight int           `yaml:"thumbHeight"`
	FontFile    string        `yaml:"fontFile"`
	Timeout     time.Duration `yaml:"timeout"`
}

// OAuthConfig holds refresh-token credentials for the host platform.
type OAuthConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RefreshToken string `yaml:"refreshToken"`
	TokenURL     string `yaml:"tokenUrl"`
}

// PublishConfig configures the host platform and the upload protocol.
type PublishConfig struct {
	APIBaseURL     string        `yaml:"apiBaseUrl"`
	UploadBaseURL  string        `yaml:"uploadBaseUrl"`
	ChunkSize      int64         `yaml:"chunkSize"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryCodes     []int         `yaml:"retryCodes"`
	QuotaReasons   []string      `yaml:"quotaReasons"`
	Privacy        string        `yaml:"privacy"`
	CategoryID     string        `yaml:"categoryId"`
	Language       string        `yaml:"language"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	OAuth          OAuthConfig   `yaml:"oauth"`
}

// PolicyConfig tunes post-publish classification.
type PolicyConfig struct {
	// BlockRegionThreshold escalates a region restriction to a block once this many regions are blocked. 0 disables.
	BlockRegionThreshold int `yaml:"blockRegionThreshold"`
}

// SchedulerConfig defines when daemon mode runs cycles.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ServerConfig is the daemon HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig describes the optional Postgres history mirror.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ArchiveConfig describes the optional S3 archive of publish records.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// EventsConfig describes the optional Kafka outcome stream.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// Load reads YAML configuration from $TRACKPUBLISHER_CONFIG (if set) and applies environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit YAML path; an empty path means defaults plus environment.
func LoadFile(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	cfg.bindTimezone()

	return cfg
}

// Parse decodes YAML over the defaults; keys absent from raw keep their default values.
func Parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(channelNameEnv); v != "" {
		c.Channel.Name = v
	}

	if v := os.Getenv(stateDirEnv); v != "" {
		c.State.Dir = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(catalogAPIKeyEnv); v != "" {
		c.Catalog.APIKey = v
	}

	if v := os.Getenv(clientIDEnv); v != "" {
		c.Publish.OAuth.ClientID = v
	}

	if v := os.Getenv(clientSecretEnv); v != "" {
		c.Publish.OAuth.ClientSecret = v
	}

	if v := os.Getenv(refreshTokenEnv); v != "" {
		c.Publish.OAuth.RefreshToken = v
	}

	if v := os.Getenv(privacyEnv); v != "" {
		c.Publish.Privacy = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(archiveBucketEnv); v != "" {
		c.Archive.Bucket = v
	}

	if v := os.Getenv(eventsBrokersEnv); v != "" {
		c.Events.Brokers = splitList(v)
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}
}

// normalize repairs values that would make a cycle misbehave rather than fail loudly.
func (c *Config) normalize() {
	def := defaultConfig()

	if len(c.Buckets) == 0 {
		c.Buckets = def.Buckets
	}
	for i := range c.Buckets {
		if c.Buckets[i].Category == "" {
			c.Buckets[i].Category = c.Catalog.Category
		}
		if c.Buckets[i].Source == "" {
			c.Buckets[i].Source = "youtube"
		}
	}
	if len(c.UploadTypes) == 0 {
		c.UploadTypes = def.UploadTypes
	}
	if len(c.Download.Variants) == 0 {
		c.Download.Variants = def.Download.Variants
	}
	if c.Selection.MaxCandidates <= 0 {
		c.Selection.MaxCandidates = def.Selection.MaxCandidates
	}
	if c.Publish.ChunkSize <= 0 {
		c.Publish.ChunkSize = defaultChunkSize
	}
	if c.Publish.MaxRetries <= 0 {
		c.Publish.MaxRetries = defaultMaxRetries
	}
	if len(c.Publish.RetryCodes) == 0 {
		c.Publish.RetryCodes = def.Publish.RetryCodes
	}
	if len(c.Publish.QuotaReasons) == 0 {
		c.Publish.QuotaReasons = def.Publish.QuotaReasons
	}
	if c.Download.MinBytes <= 0 {
		c.Download.MinBytes = defaultMinDownload
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Channel:   ChannelConfig{Name: "LoFi Aura"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		State:     StateConfig{Dir: "output"},
		Workspace: WorkspaceConfig{Dir: "temp"},
		Catalog: CatalogConfig{
			BaseURL:     "https://www.googleapis.com/youtube/v3",
			Category:    "10",
			RankedLimit: 25,
			SearchLimit: 15,
			Timeout:     20 * time.Second,
		},
		Selection: SelectionConfig{
			MaxCandidates: 10,
			MinDuration:   60 * time.Second,
			MaxDuration:   480 * time.Second,
		},
		Buckets: []BucketConfig{
			{
				Name:     "english",
				Region:   "US",
				Category: "10",
				Source:   "youtube",
				Queries: []string{
					"trending songs 2025",
					"top hits 2025 official audio",
					"viral english songs 2025",
				},
			},
			{
				Name:     "hindi",
				Region:   "IN",
				Category: "10",
				Source:   "youtube",
				Queries: []string{
					"viral hindi songs 2025",
					"most streamed songs 2025",
				},
			},
		},
		UploadTypes: []string{"single", "single", "mashup"},
		Download: DownloadConfig{
			Binary:         "yt-dlp",
			CookiesPath:    "/tmp/yt_cookies.txt",
			MinCookieBytes: 500,
			MinBytes:       defaultMinDownload,
			Timeout:        5 * time.Minute,
			Variants: []VariantConfig{
				{Client: "ios", Format: "bestaudio"},
				{Client: "web", Format: "bestaudio"},
				{Client: "android", Format: "bestaudio"},
				{Client: "ios", Format: "worstaudio/bestaudio"},
				{Client: "tv_embedded", Format: "bestaudio/best"},
				{Client: "mweb", Format: "bestaudio/best"},
				{Client: "ios"},
				{Client: "web"},
			},
		},
		Audio: AudioConfig{
			FFmpeg:       "ffmpeg",
			SlowFactor:   0.80,
			ReverbRoom:   0.75,
			ReverbWet:    0.35,
			TargetLUFS:   -14.0,
			FadeInSec:    3,
			FadeOutSec:   4,
			CrossfadeSec: 5,
			Timeout:      10 * time.Minute,
		},
		Render: RenderConfig{
			FFmpeg:      "ffmpeg",
			Width:       1920,
			Height:      1080,
			FPS:         24,
			ThumbWidth:  1280,
			ThumbHeight: 720,
			Timeout:     30 * time.Minute,
		},
		Publish: PublishConfig{
			APIBaseURL:     "https://www.googleapis.com/youtube/v3",
			UploadBaseURL:  "https://www.googleapis.com/upload/youtube/v3",
			ChunkSize:      defaultChunkSize,
			MaxRetries:     defaultMaxRetries,
			RetryCodes:     []int{500, 502, 503, 504},
			QuotaReasons:   []string{"quotaExceeded", "dailyLimitExceeded", "uploadLimitExceeded"},
			Privacy:        "public",
			CategoryID:     "10",
			Language:       "en",
			RequestTimeout: 2 * time.Minute,
			OAuth:          OAuthConfig{TokenURL: "https://oauth2.googleapis.com/token"},
		},
		Scheduler: SchedulerConfig{CronExpression: "0 */6 * * *", Timezone: defaultTimezone, location: tz},
		Server:    ServerConfig{Addr: ":9090"},
		Events:    EventsConfig{Topic: "trackpublisher.cycles"},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You write two-sentence descriptions for slowed + reverb music edits.",
		},
	}
}
