// Package chat is the boundary to the community platform: DMs, role
// grants, and removals for members going through verification.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	logger = log.With().Str("component", "chat").Logger()
)

// Client produces the lifecycle's side effects. Implementations must
// treat every call as fallible and independent.
type Client interface {
	SendDM(memberID, content string) error
	GrantRole(memberID, role string) error
	RemoveMember(memberID, reason string) error
}

// Webhook relays side effects as JSON POSTs to a bot gateway process
// that holds the actual platform connection.
type Webhook struct {
	url    string
	apiKey string
	client *http.Client
}

func NewWebhook(url, apiKey string) *Webhook {
	return &Webhook{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type relayPayload struct {
	Action   string `json:"action"`
	MemberID string `json:"member_id"`
	Content  string `json:"content,omitempty"`
	Role     string `json:"role,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (w *Webhook) SendDM(memberID, content string) error {
	return w.post(relayPayload{Action: "send_dm", MemberID: memberID, Content: content})
}

func (w *Webhook) GrantRole(memberID, role string) error {
	return w.post(relayPayload{Action: "grant_role", MemberID: memberID, Role: role})
}

func (w *Webhook) RemoveMember(memberID, reason string) error {
	return w.post(relayPayload{Action: "remove_member", MemberID: memberID, Reason: reason})
}

func (w *Webhook) post(p relayPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat relay %s: status %d", p.Action, resp.StatusCode)
	}
	return nil
}

// LogOnly records side effects without a platform connection, for
// development and tests.
type LogOnly struct{}

func (LogOnly) SendDM(memberID, content string) error {
	logger.Info().Str("member_id", memberID).Str("content", content).Msg("DM (log only)")
	return nil
}

func (LogOnly) GrantRole(memberID, role string) error {
	logger.Info().Str("member_id", memberID).Str("role", role).Msg("Role grant (log only)")
	return nil
}

func (LogOnly) RemoveMember(memberID, reason string) error {
	logger.Info().Str("member_id", memberID).Str("reason", reason).Msg("Removal (log only)")
	return nil
}
