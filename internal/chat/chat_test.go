package chat

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook(t *testing.T) {
	var payloads []relayPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var p relayPayload
		require.NoError(t, json.Unmarshal(body, &p))
		payloads = append(payloads, p)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "key")

	require.NoError(t, w.SendDM("m1", "hello"))
	require.NoError(t, w.GrantRole("m1", "Member"))
	require.NoError(t, w.RemoveMember("m1", "timeout"))

	require.Len(t, payloads, 3)
	assert.Equal(t, relayPayload{Action: "send_dm", MemberID: "m1", Content: "hello"}, payloads[0])
	assert.Equal(t, relayPayload{Action: "grant_role", MemberID: "m1", Role: "Member"}, payloads[1])
	assert.Equal(t, relayPayload{Action: "remove_member", MemberID: "m1", Reason: "timeout"}, payloads[2])
}

func TestWebhook_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "key")
	err := w.SendDM("m1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestLogOnly(t *testing.T) {
	c := LogOnly{}
	assert.NoError(t, c.SendDM("m1", "hello"))
	assert.NoError(t, c.GrantRole("m1", "Member"))
	assert.NoError(t, c.RemoveMember("m1", "timeout"))
}
