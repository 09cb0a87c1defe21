// Package httpapi is the inbound HTTP surface: audio and text ingest, the
// interactive callback endpoint, and the Drive push-notification relay.
// Ingest requests are acknowledged immediately and the pipeline runs on the
// background queue.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"minutesbot/app/core/blocks"
	"minutesbot/app/core/queue"
	"minutesbot/app/core/router"
	"minutesbot/app/core/slack"
	"minutesbot/app/pkg/logger"
)

const (
	datetimeLayout    = "2006年01月02日 | 15:04"
	defaultMaxUpload  = 200 << 20
	headerSignature   = "X-Slack-Signature"
	headerTimestamp   = "X-Slack-Request-Timestamp"
	headerGoogState   = "X-Goog-Resource-State"
	headerGoogToken   = "X-Goog-Channel-Token"
	headerGoogResName = "X-Goog-Resource-Id"
)

type Config struct {
	Addr           string
	SigningSecret  string
	DefaultChannel string
	// WebhookToken, when set, must match the channel token on Drive
	// notifications.
	WebhookToken   string
	MaxUploadBytes int64
}

// Ingest is the pipeline's entry points.
type Ingest interface {
	RunFromAudio(ctx context.Context, draftID, audioPath, title, channel, datetimeStr string) error
	RunFromText(ctx context.Context, draftID, text, title, channel, datetimeStr string) error
}

// Dispatcher routes interactive events.
type Dispatcher interface {
	Handle(ctx context.Context, ev router.Event) error
}

type Server struct {
	cfg        Config
	ingest     Ingest
	dispatcher Dispatcher
	jobs       *queue.Queue
	uploadDir  string
	httpServer *http.Server
	now        func() time.Time
}

func New(cfg Config, ingest Ingest, dispatcher Dispatcher, jobs *queue.Queue, uploadDir string) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	s := &Server{
		cfg:        cfg,
		ingest:     ingest,
		dispatcher: dispatcher,
		jobs:       jobs,
		uploadDir:  uploadDir,
		now:        time.Now,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /ingest/text", s.handleIngestText)
	mux.HandleFunc("POST /slack/actions", s.handleSlackActions)
	mux.HandleFunc("POST /drive/notifications", s.handleDriveNotification)
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown. Blocks; run on its own goroutine.
func (s *Server) Start() error {
	logger.Info("httpapi: listening on %s", s.cfg.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"ok": true}
	if s.jobs != nil {
		body["queue"] = s.jobs.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleUpload receives a recording, stores it, and queues the audio
// pipeline. The response carries the draft id before any processing starts.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid multipart request"})
		return
	}

	channel := firstNonEmpty(r.FormValue("channel_id"), s.cfg.DefaultChannel)
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Slack投稿先が不明です。"})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "audio file is required"})
		return
	}
	defer file.Close()

	draftID := uuid.NewString()
	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".webm"
	}
	audioPath := filepath.Join(s.uploadDir, draftID+ext)
	dst, err := os.Create(audioPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to store upload"})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to store upload"})
		return
	}
	if err := dst.Close(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to store upload"})
		return
	}

	title := firstNonEmpty(r.FormValue("title"), header.Filename)
	datetimeStr := s.now().Format(datetimeLayout)
	_, err = s.jobs.Enqueue(r.Context(), queue.Job{
		ID: "ingest-audio-" + draftID,
		Run: func(ctx context.Context) error {
			return s.ingest.RunFromAudio(ctx, draftID, audioPath, title, channel, datetimeStr)
		},
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "ingest queue unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accepted": true, "draft_id": draftID})
}

// handleIngestText accepts an already-transcribed meeting as JSON
// {"text": ..., "title": ..., "channel_id": ...}.
func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unreadable body"})
		return
	}
	parsed := gjson.ParseBytes(body)
	text := parsed.Get("text").String()
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "text is required"})
		return
	}
	channel := firstNonEmpty(parsed.Get("channel_id").String(), s.cfg.DefaultChannel)
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Slack投稿先が不明です。"})
		return
	}

	draftID := uuid.NewString()
	title := parsed.Get("title").String()
	datetimeStr := s.now().Format(datetimeLayout)
	_, err = s.jobs.Enqueue(r.Context(), queue.Job{
		ID: "ingest-text-" + draftID,
		Run: func(ctx context.Context) error {
			return s.ingest.RunFromText(ctx, draftID, text, title, channel, datetimeStr)
		},
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "ingest queue unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accepted": true, "draft_id": draftID})
}

// handleSlackActions verifies the request signature, then dispatches the
// payload. Approvals are acknowledged first and run on the queue; the
// fan-out takes longer than the interactivity deadline allows.
func (s *Server) handleSlackActions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unreadable body"})
		return
	}
	err = slack.VerifySignature(s.cfg.SigningSecret, body,
		r.Header.Get(headerTimestamp), r.Header.Get(headerSignature), s.now())
	if err != nil {
		logger.Warn("httpapi: rejected interactive request: %v", err)
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "invalid signature"})
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil || form.Get("payload") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing payload"})
		return
	}
	payload := gjson.Parse(form.Get("payload"))

	switch payload.Get("type").String() {
	case "block_actions":
		s.dispatchButton(r.Context(), w, payload)
	case "view_submission":
		s.dispatchModal(r.Context(), w, payload)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

func (s *Server) dispatchButton(ctx context.Context, w http.ResponseWriter, payload gjson.Result) {
	action := payload.Get("actions.0")
	press := router.ButtonPress{
		ActionID:  action.Get("action_id").String(),
		DraftID:   action.Get("value").String(),
		Value:     action.Get("value").String(),
		Channel:   payload.Get("channel.id").String(),
		MessageTS: payload.Get("message.ts").String(),
		TriggerID: payload.Get("trigger_id").String(),
	}

	if press.ActionID == blocks.ActionApprove {
		// Ack now, fan out in the background.
		_, err := s.jobs.Enqueue(ctx, queue.Job{
			ID: "approve-" + press.DraftID,
			Run: func(jobCtx context.Context) error {
				return s.dispatcher.Handle(jobCtx, press)
			},
		})
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
		return
	}

	if err := s.dispatcher.Handle(ctx, press); err != nil {
		logger.Error("httpapi: action %s failed: %v", press.ActionID, err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) dispatchModal(ctx context.Context, w http.ResponseWriter, payload gjson.Result) {
	values := map[string]string{}
	payload.Get("view.state.values").ForEach(func(blockID, inputs gjson.Result) bool {
		values[blockID.String()] = inputs.Get("inp.value").String()
		return true
	})
	submit := router.ModalSubmit{
		CallbackID: payload.Get("view.callback_id").String(),
		DraftID:    payload.Get("view.private_metadata").String(),
		Values:     values,
	}
	if err := s.dispatcher.Handle(ctx, submit); err != nil {
		logger.Error("httpapi: modal submit failed: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"response_action": "clear"})
}

// handleDriveNotification relays folder-change pushes to the watcher. The
// initial sync message acknowledges channel setup; everything else triggers
// a scan after the optional token check.
func (s *Server) handleDriveNotification(w http.ResponseWriter, r *http.Request) {
	state := r.Header.Get(headerGoogState)
	token := r.Header.Get(headerGoogToken)

	if state == "sync" {
		if token != "" {
			w.Header().Set(headerGoogToken, token)
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	if s.cfg.WebhookToken != "" && token != s.cfg.WebhookToken {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": "invalid channel token"})
		return
	}

	notice := router.FileChangeNotice{
		ResourceID: r.Header.Get(headerGoogResName),
		Token:      token,
	}
	if err := s.dispatcher.Handle(r.Context(), notice); err != nil {
		logger.Error("httpapi: drive notification failed: %v", err)
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("httpapi: write response: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
