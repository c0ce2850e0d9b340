package config

// Config is the process-wide relay configuration. It is loaded once at
// startup and never mutated afterwards.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Relay    RelayConfig    `json:"relay"`
	Intake   IntakeConfig   `json:"intake"`
	Probe    ProbeConfig    `json:"probe"`
	Logging  LoggingConfig  `json:"logging"`
}

// TelegramConfig identifies the bot and the destination chat.
//
// Prefer RELAY_TELEGRAM_TOKEN (env or .env) over putting the token here.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`
	// APIURL defaults to https://api.telegram.org (useful for a local Bot API server).
	APIURL string `json:"api_url,omitempty"`
}

// RelayConfig controls message rendering and delivery.
//
// Defaults (when fields are omitted/zero):
//   - transport: "http"
//   - timeout: "10s"
//   - parse_mode: "Markdown"
//   - escape_markdown: false
//   - timezone: "Asia/Kolkata"
type RelayConfig struct {
	// Transport selects the sender: "http" (plain net/http) or "telebot".
	Transport      string `json:"transport,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	ParseMode      string `json:"parse_mode,omitempty"`
	EscapeMarkdown bool   `json:"escape_markdown,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// IntakeConfig controls the HTTP API the booking backend calls.
//
// Security note: bind to localhost or set a token when exposed.
type IntakeConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:8088"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)

	// AllowInsecure permits a non-loopback addr without a token.
	AllowInsecure bool `json:"allow_insecure,omitempty"`

	RatePerSec     float64  `json:"rate_per_sec,omitempty"` // 0 disables limiting
	Burst          int      `json:"burst,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// ProbeConfig schedules periodic test messages.
type ProbeConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron expression ("0 9 * * *"), a descriptor ("@every 6h")
	// or a Go duration ("6h").
	Schedule string `json:"schedule,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
