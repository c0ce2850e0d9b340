package relay

import (
	"strconv"
	"strings"
	"time"
)

// Placeholders for optional booking fields left blank.
const (
	placeholderInstitute    = "Not specified"
	placeholderGuardianMail = "Not provided"
	placeholderRequirements = "None"
)

// timestampLayout mirrors the en-IN locale rendering, e.g. "15/10/2026, 3:04:05 pm".
const timestampLayout = "2/1/2006, 3:04:05 pm"

// TestMessage is the literal sent by TestConnection.
const TestMessage = "🧪 *TEST MESSAGE* 🧪\n\nTelegram Bot connection successful!"

// FormatOptions controls how user-supplied values are substituted.
type FormatOptions struct {
	EscapeMarkdown bool
}

// FormatTimestamp renders t the way submission times appear in messages.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// FormatAmount renders a rupee amount in shortest decimal form (5000, 5000.5).
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatBooking renders a booking notification. It is a pure function of
// its arguments.
func FormatBooking(b Booking, at time.Time, opt FormatOptions) string {
	v := opt.value
	var sb strings.Builder
	sb.WriteString("🏠 *NEW BOOKING REQUEST* 🏠\n\n")
	sb.WriteString("👤 *Name:* " + v(b.Name) + "\n")
	sb.WriteString("📞 *Phone:* " + v(b.Phone) + "\n")
	sb.WriteString("📧 *Email:* " + v(b.Email) + "\n")
	sb.WriteString("🏠 *Room Type:* " + v(b.RoomType) + "\n")
	sb.WriteString("📅 *Check-in:* " + v(b.CheckIn) + "\n")
	sb.WriteString("📅 *Duration:* " + v(b.Duration) + "\n")
	sb.WriteString("👤 *Age:* " + v(b.Age) + "\n")
	sb.WriteString("💼 *Occupation:* " + v(b.Occupation) + "\n")
	sb.WriteString("🏢 *Institute/Company:* " + opt.optional(b.InstituteCompany, placeholderInstitute) + "\n")
	sb.WriteString("🏠 *Current Address:* " + v(b.CurrentAddress) + "\n\n")

	sb.WriteString("👨‍👩‍👧‍👦 *Guardian Details:*\n")
	sb.WriteString("• Name: " + v(b.GuardianName) + " (" + v(b.GuardianRelation) + ")\n")
	sb.WriteString("• Phone: " + v(b.GuardianPhone) + "\n")
	sb.WriteString("• Email: " + opt.optional(b.GuardianEmail, placeholderGuardianMail) + "\n\n")

	sb.WriteString("💰 *Monthly Rent:* ₹" + FormatAmount(b.TotalAmount) + "\n\n")

	sb.WriteString("💬 *Special Requirements:* " + opt.optional(b.SpecialRequirements, placeholderRequirements) + "\n\n")

	sb.WriteString("🆔 *Booking ID:* " + v(b.BookingID) + "\n")
	sb.WriteString("⏰ *Submitted at:* " + FormatTimestamp(at))
	return sb.String()
}

// FormatContact renders a contact notification. Subject and message are
// kept in full.
func FormatContact(c Contact, at time.Time, opt FormatOptions) string {
	v := opt.value
	var sb strings.Builder
	sb.WriteString("📩 *NEW CONTACT MESSAGE* 📩\n\n")
	sb.WriteString("👤 *Name:* " + v(c.Name) + "\n")
	sb.WriteString("📞 *Phone:* " + v(c.Phone) + "\n")
	sb.WriteString("📧 *Email:* " + v(c.Email) + "\n")
	sb.WriteString("🏷️ *Subject:* " + v(c.Subject) + "\n\n")
	sb.WriteString("💬 *Message:*\n")
	sb.WriteString(v(c.Message) + "\n\n")
	sb.WriteString("⏰ *Submitted at:* " + FormatTimestamp(at))
	return sb.String()
}

func (o FormatOptions) value(s string) string {
	if o.EscapeMarkdown {
		return EscapeMarkdown(s)
	}
	return s
}

func (o FormatOptions) optional(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return o.value(s)
}

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown escapes the control characters of Telegram's legacy
// Markdown mode so s renders literally.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
