// Package pipeline owns the two long-running flows: turning ingested audio
// or text into a posted draft, and fanning an approved draft out to document
// generation, mail, Drive, and the task thread. Fan-out steps are isolated;
// one failing destination is logged and the rest still run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"minutesbot/app/core/blocks"
	"minutesbot/app/core/minutes"
	"minutesbot/app/core/render"
	"minutesbot/app/core/router"
	"minutesbot/app/pkg/logger"
)

const maxTitleRunes = 200

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (minutes.Draft, error)
}

// Poster posts the draft review message. Implemented by the router.
type Poster interface {
	PostDraft(ctx context.Context, channel, draftID string, d minutes.Draft) (router.MessageRef, error)
}

// Storage is the persistence the pipeline writes through.
type Storage interface {
	Create(ctx context.Context, d minutes.Draft) error
	SaveTranscript(id string, text string) error
	SaveDocument(id string, kind string, data []byte) (string, error)
}

// Attacher is the chat surface used during fan-out.
type Attacher interface {
	PostThread(ctx context.Context, channel, threadTS, text string) error
	PostThreadBlocks(ctx context.Context, channel, threadTS, text string, tree []blocks.Block) (string, error)
	UploadFile(ctx context.Context, channel, threadTS, comment, filename, title string, content []byte) error
}

// Uploader is the Drive subset used during fan-out.
type Uploader interface {
	Upload(ctx context.Context, folderID, name, mimeType string, content []byte) (id, webViewLink string, err error)
}

type MailSender interface {
	Enabled() bool
	Send(to, subject, body, attachName string, attachment []byte) error
}

// ReminderScheduler hands task reminders to deferred delivery.
type ReminderScheduler interface {
	Schedule(ctx context.Context, channel, threadTS string, d minutes.Draft)
}

type Config struct {
	// DriveFolderID receives approved documents; empty uploads to the root.
	DriveFolderID string
	// MailTo receives approved minutes; usually the sending account itself.
	MailTo string
}

type Pipeline struct {
	cfg         Config
	transcriber Transcriber
	summarizer  Summarizer
	storage     Storage
	poster      Poster
	attacher    Attacher
	uploader    Uploader
	mailer      MailSender
	reminders   ReminderScheduler
	now         func() time.Time
}

func New(cfg Config, transcriber Transcriber, summarizer Summarizer, storage Storage, poster Poster, attacher Attacher, uploader Uploader, mailer MailSender, reminders ReminderScheduler) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		transcriber: transcriber,
		summarizer:  summarizer,
		storage:     storage,
		poster:      poster,
		attacher:    attacher,
		uploader:    uploader,
		mailer:      mailer,
		reminders:   reminders,
		now:         time.Now,
	}
}

// WithClock overrides the wall clock.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// SetPoster wires the review-message poster after construction. The poster
// and the pipeline reference each other, so one of them is attached late.
func (p *Pipeline) SetPoster(poster Poster) {
	p.poster = poster
}

// RunFromAudio transcribes an uploaded recording and continues with the text
// flow. Any stage failing aborts the run; nothing is posted for a draft that
// did not complete.
func (p *Pipeline) RunFromAudio(ctx context.Context, draftID, audioPath, title, channel, datetimeStr string) error {
	text, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", draftID, err)
	}
	return p.RunFromText(ctx, draftID, text, title, channel, datetimeStr)
}

// RunFromText summarizes a transcript, persists the draft, and posts it for
// review.
func (p *Pipeline) RunFromText(ctx context.Context, draftID, text, title, channel, datetimeStr string) error {
	if err := p.storage.SaveTranscript(draftID, text); err != nil {
		return fmt.Errorf("pipeline %s: save transcript: %w", draftID, err)
	}

	d, err := p.summarizer.Summarize(ctx, text)
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", draftID, err)
	}
	d.ID = draftID
	d.Title = clipRunes(strings.TrimSpace(title), maxTitleRunes)
	d.DatetimeStr = datetimeStr

	if err := p.storage.Create(ctx, d); err != nil {
		return fmt.Errorf("pipeline %s: create draft: %w", draftID, err)
	}
	if _, err := p.poster.PostDraft(ctx, channel, draftID, d); err != nil {
		return fmt.Errorf("pipeline %s: %w", draftID, err)
	}
	logger.Info("pipeline: draft %s posted to %s", draftID, channel)
	return nil
}

// Approve satisfies the router's fan-out hook.
func (p *Pipeline) Approve(ctx context.Context, d minutes.Draft, ref router.MessageRef) {
	p.RunApproval(ctx, d, ref)
}

// RunApproval distributes an approved draft. Steps run in order; a failed
// step logs and the remaining destinations still receive the documents. The
// closing thread note reports what was produced.
func (p *Pipeline) RunApproval(ctx context.Context, d minutes.Draft, ref router.MessageRef) {
	approvedAt := p.now()
	minutesDoc := []byte(render.Minutes(d, approvedAt))
	checklistDoc := []byte(render.DesignChecklist(d, approvedAt))
	minutesName := d.ID + "_minutes.md"
	checklistName := d.ID + "_design_checklist.md"

	if _, err := p.storage.SaveDocument(d.ID, "minutes", minutesDoc); err != nil {
		logger.Error("fanout %s: save minutes doc: %v", d.ID, err)
	}
	if _, err := p.storage.SaveDocument(d.ID, "design_checklist", checklistDoc); err != nil {
		logger.Error("fanout %s: save checklist doc: %v", d.ID, err)
	}

	if p.mailer != nil && p.mailer.Enabled() {
		to := p.cfg.MailTo
		subject := "[議事録承認] " + d.DisplayName()
		if err := p.mailer.Send(to, subject, "承認済み議事録を添付します。", minutesName, minutesDoc); err != nil {
			logger.Error("fanout %s: mail: %v", d.ID, err)
		}
	}

	driveLink := ""
	if p.uploader != nil {
		_, link, err := p.uploader.Upload(ctx, p.cfg.DriveFolderID, minutesName, "text/markdown", minutesDoc)
		if err != nil {
			logger.Error("fanout %s: drive upload: %v", d.ID, err)
		} else {
			driveLink = link
		}
	}

	if err := p.attacher.UploadFile(ctx, ref.Channel, ref.TS, "議事録ドキュメントを添付します。", minutesName, "議事録："+d.DisplayName(), minutesDoc); err != nil {
		logger.Error("fanout %s: attach minutes: %v", d.ID, err)
	}
	if err := p.attacher.UploadFile(ctx, ref.Channel, ref.TS, "設計チェックリストを添付します。", checklistName, "設計チェックリスト", checklistDoc); err != nil {
		logger.Error("fanout %s: attach checklist: %v", d.ID, err)
	}

	if _, err := p.attacher.PostThreadBlocks(ctx, ref.Channel, ref.TS, "アクションアイテム＆タスク", blocks.TaskList(d.ID, d)); err != nil {
		logger.Error("fanout %s: task list: %v", d.ID, err)
	}

	if p.reminders != nil {
		p.reminders.Schedule(ctx, ref.Channel, ref.TS, d)
	}

	note := "✅ ドキュメント生成・メール送信・Google Drive保存を完了しました。"
	if driveLink != "" {
		note += "\n🔗 Drive: " + driveLink
	}
	if err := p.attacher.PostThread(ctx, ref.Channel, ref.TS, note); err != nil {
		logger.Error("fanout %s: completion note: %v", d.ID, err)
	}
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
