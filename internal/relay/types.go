package relay

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ParseModeMarkdown is the Telegram markup dialect the templates are written in.
const ParseModeMarkdown = "Markdown"

// Failure reasons produced by the relay itself (API failures carry the
// remote description instead).
const (
	ReasonNetwork = "Network error"
	ReasonUnknown = "Unknown error"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultTimezone = "Asia/Kolkata"
)

// Booking is a booking form submission already accepted by the backend.
// Empty optional fields render as placeholders.
type Booking struct {
	Name             string
	Phone            string
	Email            string
	RoomType         string
	CheckIn          string
	Duration         string
	Age              string
	Occupation       string
	InstituteCompany string
	CurrentAddress   string
	GuardianName     string
	GuardianRelation string
	GuardianPhone    string
	GuardianEmail    string
	TotalAmount      float64

	SpecialRequirements string

	// BookingID is assigned by the backend and forwarded verbatim.
	BookingID string
}

// Contact is a contact form submission.
type Contact struct {
	Name    string
	Phone   string
	Email   string
	Subject string
	Message string
}

// Config is the relay's read-only configuration.
//
// Endpoint is called once per delivery to build the target URL, so a
// token never has to live in a plain string field.
type Config struct {
	Endpoint func() string
	ChatID   string

	// ParseMode defaults to ParseModeMarkdown.
	ParseMode string
	// EscapeMarkdown escapes Markdown control characters in user-supplied
	// values. Off by default to keep the bot output unchanged.
	EscapeMarkdown bool
	// Location is used for the "Submitted at" timestamp (default Asia/Kolkata).
	Location *time.Location
	// Timeout bounds a single HTTP delivery (default 10s).
	Timeout time.Duration
}

// BotEndpoint builds the sendMessage URL for a bot token, e.g.
// https://api.telegram.org/bot<token>/sendMessage.
func BotEndpoint(apiURL, token string) func() string {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return func() string {
		return strings.TrimRight(apiURL, "/") + "/bot" + token + "/sendMessage"
	}
}

// DefaultAPIURL is the public Telegram Bot API.
const DefaultAPIURL = "https://api.telegram.org"

// Message is the sendMessage request body.
type Message struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Result is the outcome of one relay call: either Success (OK, Raw set)
// or Failure (Reason set).
type Result struct {
	OK     bool
	Raw    json.RawMessage
	Reason string
}

func Success(raw json.RawMessage) Result { return Result{OK: true, Raw: raw} }

func Failure(reason string) Result {
	if reason == "" {
		reason = ReasonUnknown
	}
	return Result{Reason: reason}
}

// Err returns nil on success and an error carrying Reason otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Reason)
}

func (r Result) String() string {
	if r.OK {
		return "success"
	}
	return "failure: " + r.Reason
}
