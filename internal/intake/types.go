package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"hostelrelay/internal/relay"
)

// Notifier is the relay surface the intake API exposes.
type Notifier interface {
	NotifyBooking(ctx context.Context, b relay.Booking) relay.Result
	NotifyContact(ctx context.Context, c relay.Contact) relay.Result
	TestConnection(ctx context.Context) relay.Result
}

// Response mirrors the booking backend's envelope so the same client code
// can read both.
type Response struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	BookingID string            `json:"booking_id,omitempty"`
}

// bookingRequest is the wire form of a booking submission. Form backends
// often send numbers as strings (and the reverse), so scalar fields
// accept either.
type bookingRequest struct {
	Name                string     `json:"name"`
	Phone               flexString `json:"phone"`
	Email               string     `json:"email"`
	RoomType            string     `json:"room_type"`
	CheckIn             string     `json:"check_in"`
	Duration            flexString `json:"duration"`
	Age                 flexString `json:"age"`
	Occupation          string     `json:"occupation"`
	InstituteCompany    string     `json:"institute_company"`
	CurrentAddress      string     `json:"current_address"`
	GuardianName        string     `json:"guardian_name"`
	GuardianRelation    string     `json:"guardian_relation"`
	GuardianPhone       flexString `json:"guardian_phone"`
	GuardianEmail       string     `json:"guardian_email"`
	TotalAmount         flexAmount `json:"total_amount"`
	SpecialRequirements string     `json:"special_requirements"`
	BookingID           flexString `json:"booking_id"`
}

func (r bookingRequest) toBooking() relay.Booking {
	return relay.Booking{
		Name:                r.Name,
		Phone:               string(r.Phone),
		Email:               r.Email,
		RoomType:            r.RoomType,
		CheckIn:             r.CheckIn,
		Duration:            string(r.Duration),
		Age:                 string(r.Age),
		Occupation:          r.Occupation,
		InstituteCompany:    r.InstituteCompany,
		CurrentAddress:      r.CurrentAddress,
		GuardianName:        r.GuardianName,
		GuardianRelation:    r.GuardianRelation,
		GuardianPhone:       string(r.GuardianPhone),
		GuardianEmail:       r.GuardianEmail,
		TotalAmount:         float64(r.TotalAmount),
		SpecialRequirements: r.SpecialRequirements,
		BookingID:           string(r.BookingID),
	}
}

type contactRequest struct {
	Name    string     `json:"name"`
	Phone   flexString `json:"phone"`
	Email   string     `json:"email"`
	Subject string     `json:"subject"`
	Message string     `json:"message"`
}

func (r contactRequest) toContact() relay.Contact {
	return relay.Contact{
		Name:    r.Name,
		Phone:   string(r.Phone),
		Email:   r.Email,
		Subject: r.Subject,
		Message: r.Message,
	}
}

// flexString accepts a JSON string or number and keeps its literal text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// flexAmount accepts a JSON number or a numeric string ("8500", "8,500").
type flexAmount float64

func (f *flexAmount) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	raw := strings.ReplaceAll(strings.TrimSpace(string(s)), ",", "")
	if raw == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", string(s))
	}
	*f = flexAmount(v)
	return nil
}
