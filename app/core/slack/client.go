// Package slack is a minimal Slack Web API client covering what the draft
// workflow needs: posting and updating block messages, opening modals,
// scheduling deferred messages, and attaching files to a thread.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"minutesbot/app/core/blocks"
)

const defaultAPIRoot = "https://slack.com/api"

type Config struct {
	BotToken string
	APIRoot  string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.APIRoot) == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PostMessage posts a block message and returns its timestamp, the second
// half of the message coordinates used by every later update.
func (c *Client) PostMessage(ctx context.Context, channel, text string, tree []blocks.Block) (string, error) {
	payload := map[string]interface{}{
		"channel": channel,
		"text":    text,
	}
	if len(tree) > 0 {
		payload["blocks"] = blocks.Render(tree)
	}
	res, err := c.api(ctx, "chat.postMessage", payload)
	if err != nil {
		return "", err
	}
	return res.Get("ts").String(), nil
}

func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, tree []blocks.Block) error {
	_, err := c.api(ctx, "chat.update", map[string]interface{}{
		"channel": channel,
		"ts":      ts,
		"text":    text,
		"blocks":  blocks.Render(tree),
	})
	return err
}

// UpdateRawBlocks replaces a message's blocks with pre-rendered JSON. Used
// when an existing rendering is patched in place rather than rebuilt.
func (c *Client) UpdateRawBlocks(ctx context.Context, channel, ts, text string, raw json.RawMessage) error {
	_, err := c.api(ctx, "chat.update", map[string]interface{}{
		"channel": channel,
		"ts":      ts,
		"text":    text,
		"blocks":  raw,
	})
	return err
}

func (c *Client) PostThread(ctx context.Context, channel, threadTS, text string) error {
	_, err := c.api(ctx, "chat.postMessage", map[string]interface{}{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

// PostThreadBlocks posts a block message into a thread and returns its
// timestamp.
func (c *Client) PostThreadBlocks(ctx context.Context, channel, threadTS, text string, tree []blocks.Block) (string, error) {
	res, err := c.api(ctx, "chat.postMessage", map[string]interface{}{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      text,
		"blocks":    blocks.Render(tree),
	})
	if err != nil {
		return "", err
	}
	return res.Get("ts").String(), nil
}

// ScheduleMessage hands a reminder to Slack's deferred delivery. postAt is
// absolute epoch seconds in UTC. Once accepted the send is outside this
// process's control.
func (c *Client) ScheduleMessage(ctx context.Context, channel, threadTS, text string, postAt int64) error {
	payload := map[string]interface{}{
		"channel": channel,
		"text":    text,
		"post_at": postAt,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	_, err := c.api(ctx, "chat.scheduleMessage", payload)
	return err
}

func (c *Client) OpenView(ctx context.Context, triggerID string, view map[string]interface{}) error {
	_, err := c.api(ctx, "views.open", map[string]interface{}{
		"trigger_id": triggerID,
		"view":       view,
	})
	return err
}

// UploadFile attaches a generated document to a thread.
func (c *Client) UploadFile(ctx context.Context, channel, threadTS, comment, filename, title string, content []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"channels":        channel,
		"filename":        filename,
		"title":           title,
		"initial_comment": comment,
	}
	if threadTS != "" {
		fields["thread_ts"] = threadTS
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("files.upload"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.BotToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func (c *Client) api(ctx context.Context, method string, payload interface{}) (gjson.Result, error) {
	token := strings.TrimSpace(c.cfg.BotToken)
	if token == "" {
		return gjson.Result{}, fmt.Errorf("slack bot token is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("slack api %s status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	parsed := gjson.ParseBytes(respBody)
	if parsed.Get("ok").Exists() && !parsed.Get("ok").Bool() {
		return gjson.Result{}, fmt.Errorf("slack api %s error: %s", method, parsed.Get("error").String())
	}
	return parsed, nil
}

func (c *Client) endpoint(method string) string {
	return strings.TrimRight(c.cfg.APIRoot, "/") + "/" + method
}

func checkResponse(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	parsed := gjson.ParseBytes(respBody)
	if parsed.Get("ok").Exists() && !parsed.Get("ok").Bool() {
		return fmt.Errorf("slack api error: %s", parsed.Get("error").String())
	}
	return nil
}
