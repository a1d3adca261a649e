// Package model defines the core data structures for campusbell.
package model

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventNotificationNew is the transport event carrying a NotificationEvent.
const EventNotificationNew = "notification.new"

// CacheTagNotifications is the cache tag family invalidated for every event.
const CacheTagNotifications = "notifications"

// Priority values recognized by the dispatch path.
// Any other value (including typos) is treated as neutral.
const (
	PriorityLow  = "low"
	PriorityHigh = "high"
)

// Known notification categories. The list is informational; unknown
// categories are valid and resolve to the default tone.
const (
	CategoryMessage               = "message"
	CategoryFollow                = "follow"
	CategoryLike                  = "like"
	CategoryGroupInvite           = "group_invite"
	CategoryEventInvite           = "event_invite"
	CategoryMentorshipApplication = "mentorship_application"
	CategoryComment               = "comment"
	CategoryReply                 = "reply"
	CategoryMention               = "mention"
)

// ErrMalformedPayload is returned when a payload cannot be decoded at all.
// Missing optional fields are not malformed.
var ErrMalformedPayload = errors.New("malformed notification payload")

// FlexibleID is an identifier that may arrive on the wire as a JSON string or number.
type FlexibleID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// MarshalJSON writes the id as a JSON string.
func (id FlexibleID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(id))), nil
}

// String returns the id as a plain string.
func (id FlexibleID) String() string {
	return string(id)
}

// NotificationEvent is a server-pushed notification as delivered by the transport.
// It is transient: consumed once per delivery and never stored.
type NotificationEvent struct {
	ID             FlexibleID `json:"id"`
	RecipientID    FlexibleID `json:"to_user_id"`
	SenderID       FlexibleID `json:"from_user_id,omitempty"`
	Type           string     `json:"type"`
	Title          string     `json:"title,omitempty"`
	Message        string     `json:"message,omitempty"`
	RelatedID      string     `json:"related_id,omitempty"`
	IsRead         bool       `json:"is_read"`
	Priority       string     `json:"priority,omitempty"`
	ActionRequired bool       `json:"action_required,omitempty"`
	CreatedAt      int64      `json:"created_at,omitempty"` // epoch milliseconds

	// Fields present on the wire with the wrong JSON type. They are left at
	// their zero values.
	Ignored []string `json:"-"`
}

// Decode parses a wire payload into a NotificationEvent.
// Absent optional fields are left at their zero values, and so are fields of
// the wrong JSON type; their names are recorded in Ignored. Only a payload
// that is not a JSON object is malformed.
func Decode(payload []byte) (*NotificationEvent, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var ev NotificationEvent
	for _, f := range ev.wireFields() {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			ev.Ignored = append(ev.Ignored, f.name)
		}
	}
	return &ev, nil
}

type wireField struct {
	name string
	dst  any
}

func (e *NotificationEvent) wireFields() []wireField {
	return []wireField{
		{"id", &e.ID},
		{"to_user_id", &e.RecipientID},
		{"from_user_id", &e.SenderID},
		{"type", &e.Type},
		{"title", &e.Title},
		{"message", &e.Message},
		{"related_id", &e.RelatedID},
		{"is_read", &e.IsRead},
		{"priority", &e.Priority},
		{"action_required", &e.ActionRequired},
		{"created_at", &e.CreatedAt},
	}
}

// HasTitle reports whether the event carries a title. Empty and null titles
// count as absent.
func (e *NotificationEvent) HasTitle() bool {
	return e.Title != ""
}

// Category returns the tone category of the event. A missing type yields "",
// which resolves to the default tone.
func (e *NotificationEvent) Category() string {
	return e.Type
}

// CreatedAtTime returns the creation time, or the zero time when absent.
func (e *NotificationEvent) CreatedAtTime() time.Time {
	if e.CreatedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.CreatedAt)
}

// NewDeliveryID returns a ULID used to correlate log lines for one delivery.
// Delivery ids are local; they do not deduplicate events.
func NewDeliveryID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}
