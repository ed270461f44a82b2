package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/debate-panel/internal/domain"
)

var (
	errMissingConversationID = errors.New("response missing conversation_id")
	errMissingMessages       = errors.New("response missing messages")
	numericIDPattern         = regexp.MustCompile(`^(0|[1-9][0-9]{0,17})$`)
)

// flexString decodes a JSON string or number into its textual form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
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

// Backend timestamps come as RFC 3339, naive ISO 8601 (treated as UTC), or epoch seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

type flexTime struct {
	t *time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		f.t = nil
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("invalid timestamp %s", b)
		}
		whole, frac := math.Modf(secs)
		t := time.Unix(int64(whole), int64(frac*1e9)).UTC()
		f.t = &t
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		f.t = nil
		return nil
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return err
	}
	f.t = &t
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type businessWire struct {
	ID               flexString `json:"id"`
	LegacyID         flexString `json:"business_type_id"`
	Name             string     `json:"name"`
	IndustryCategory string     `json:"industry_category"`
	Description      string     `json:"description"`
}

func (b businessWire) toDomain() domain.Business {
	id := string(b.ID)
	if id == "" {
		id = string(b.LegacyID)
	}
	return domain.Business{
		ID:               id,
		Name:             b.Name,
		IndustryCategory: b.IndustryCategory,
		Description:      b.Description,
	}
}

type listBusinessesResponse struct {
	Businesses    []businessWire `json:"businesses"`
	BusinessTypes []businessWire `json:"business_types"`
}

func (r listBusinessesResponse) toDomain() []domain.Business {
	src := r.Businesses
	if len(src) == 0 {
		src = r.BusinessTypes
	}
	out := make([]domain.Business, 0, len(src))
	for _, b := range src {
		out = append(out, b.toDomain())
	}
	return out
}

type startRequest struct {
	BusinessID json.RawMessage `json:"business_id"`
}

// encodeBusinessID sends catalog ids that look like integers as JSON numbers so
// they round-trip with the type the catalog used.
func encodeBusinessID(id string) json.RawMessage {
	if numericIDPattern.MatchString(id) {
		return json.RawMessage(id)
	}
	b, _ := json.Marshal(id)
	return b
}

type startResponse struct {
	ConversationID flexString `json:"conversation_id"`
}

type statusResponse struct {
	State         *string  `json:"state"`
	TotalMessages int      `json:"total_messages"`
	CurrentRound  int      `json:"current_round"`
	LastActivity  flexTime `json:"last_activity"`
}

func (r statusResponse) toDomain() (domain.Status, error) {
	st := domain.Status{
		Round:        r.CurrentRound,
		MessageCount: r.TotalMessages,
		LastActivity: r.LastActivity.t,
	}
	if r.State == nil || *r.State == "" {
		return st, nil
	}
	phase, err := domain.ParsePhase(*r.State)
	if err != nil {
		return domain.Status{}, err
	}
	st.Phase = phase
	return st, nil
}

type messageWire struct {
	ID        flexString `json:"id"`
	AgentName string     `json:"agent_name"`
	Content   string     `json:"content"`
	Timestamp flexTime   `json:"timestamp"`
}

type messagesResponse struct {
	Messages *[]messageWire `json:"messages"`
}

func (r messagesResponse) toDomain() ([]domain.Message, error) {
	if r.Messages == nil {
		return nil, errMissingMessages
	}
	out := make([]domain.Message, 0, len(*r.Messages))
	for _, m := range *r.Messages {
		msg := domain.Message{
			ID:        string(m.ID),
			AgentName: m.AgentName,
			Content:   m.Content,
		}
		if m.Timestamp.t != nil {
			msg.Timestamp = *m.Timestamp.t
		}
		out = append(out, msg)
	}
	return out, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// extractErrorMessage pulls the human-readable text out of an error body.
func extractErrorMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(resp.Message)
}
