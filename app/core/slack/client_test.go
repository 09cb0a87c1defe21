package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"minutesbot/app/core/blocks"
)

func TestPostMessageReturnsTimestamp(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "ts": "1700000000.000100"})
	}))
	defer server.Close()

	c := NewClient(Config{BotToken: "xoxb-test", APIRoot: server.URL})
	ts, err := c.PostMessage(context.Background(), "C123", "下書き", []blocks.Block{blocks.Header{Text: "h"}})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if ts != "1700000000.000100" {
		t.Fatalf("unexpected ts: %s", ts)
	}
	if gotPayload["channel"] != "C123" {
		t.Fatalf("unexpected channel: %v", gotPayload["channel"])
	}
	if _, ok := gotPayload["blocks"]; !ok {
		t.Fatal("expected blocks in payload")
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "channel_not_found"})
	}))
	defer server.Close()

	c := NewClient(Config{BotToken: "xoxb-test", APIRoot: server.URL})
	_, err := c.PostMessage(context.Background(), "C404", "x", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "channel_not_found"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q should mention %q", err, want)
	}
}

func TestScheduleMessagePayload(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.scheduleMessage" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer server.Close()

	c := NewClient(Config{BotToken: "xoxb-test", APIRoot: server.URL})
	if err := c.ScheduleMessage(context.Background(), "C1", "1.2", "リマインド", 1700003600); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if gotPayload["post_at"].(float64) != 1700003600 {
		t.Fatalf("unexpected post_at: %v", gotPayload["post_at"])
	}
	if gotPayload["thread_ts"] != "1.2" {
		t.Fatalf("unexpected thread_ts: %v", gotPayload["thread_ts"])
	}
}

func TestMissingTokenRejected(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.PostMessage(context.Background(), "C1", "x", nil); err == nil {
		t.Fatal("expected error without token")
	}
}
