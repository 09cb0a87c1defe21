// Package router dispatches interactive events against drafts: it posts the
// initial review message, opens the edit modal, applies edits, flips task
// checkboxes, and hands approvals to the fan-out. Posted-message coordinates
// live in a routing record keyed by draft id; first-post goes through
// CreateIfAbsent so concurrent ingests of the same draft produce exactly one
// message.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"minutesbot/app/core/blocks"
	"minutesbot/app/core/minutes"
	"minutesbot/app/pkg/kvstate"
	"minutesbot/app/pkg/logger"
)

// MessageRef is the channel/timestamp pair addressing a posted message.
type MessageRef struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

func (r MessageRef) Valid() bool {
	return r.Channel != "" && r.TS != ""
}

// Notifier is the chat surface the router drives.
type Notifier interface {
	PostMessage(ctx context.Context, channel, text string, tree []blocks.Block) (string, error)
	UpdateMessage(ctx context.Context, channel, ts, text string, tree []blocks.Block) error
	UpdateRawBlocks(ctx context.Context, channel, ts, text string, raw json.RawMessage) error
	PostThread(ctx context.Context, channel, threadTS, text string) error
	OpenView(ctx context.Context, triggerID string, view map[string]interface{}) error
}

// DraftStore is the subset of draft persistence the router touches.
type DraftStore interface {
	Get(ctx context.Context, id string) (minutes.Draft, error)
	Update(ctx context.Context, d minutes.Draft) error
}

// Approver runs the post-approval fan-out. Invoked at most once per button
// press; the router has already repainted the message when it runs.
type Approver interface {
	Approve(ctx context.Context, d minutes.Draft, ref MessageRef)
}

// Scanner is poked when the file store reports a folder change.
type Scanner interface {
	TriggerScan()
}

// Event is one interactive occurrence to dispatch.
type Event interface {
	isEvent()
}

// ButtonPress is a block-actions button click.
type ButtonPress struct {
	ActionID  string
	DraftID   string
	Value     string
	Channel   string
	MessageTS string
	TriggerID string
}

// ModalSubmit carries the edit modal's field values keyed by block id.
type ModalSubmit struct {
	CallbackID string
	DraftID    string
	Values     map[string]string
}

// FileChangeNotice reports that the watched folder changed.
type FileChangeNotice struct {
	ResourceID string
	Token      string
}

func (ButtonPress) isEvent()      {}
func (ModalSubmit) isEvent()      {}
func (FileChangeNotice) isEvent() {}

type Router struct {
	notifier Notifier
	drafts   DraftStore
	records  kvstate.Store[MessageRef]
	approver Approver
	scanner  Scanner
}

func New(notifier Notifier, drafts DraftStore, records kvstate.Store[MessageRef], approver Approver, scanner Scanner) *Router {
	return &Router{
		notifier: notifier,
		drafts:   drafts,
		records:  records,
		approver: approver,
		scanner:  scanner,
	}
}

// PostDraft posts the review message for a draft and records its
// coordinates. The draft id is claimed before the post, so a concurrent
// duplicate sees the claim and returns the existing record instead of
// posting again. A failed post releases the claim.
func (r *Router) PostDraft(ctx context.Context, channel, draftID string, d minutes.Draft) (MessageRef, error) {
	if !r.records.CreateIfAbsent(draftID, MessageRef{}) {
		ref, _ := r.records.Get(draftID)
		return ref, nil
	}

	ts, err := r.notifier.PostMessage(ctx, channel, "議事録ドラフト", blocks.Preview(draftID, d))
	if err != nil {
		r.records.Delete(draftID)
		return MessageRef{}, fmt.Errorf("post draft %s: %w", draftID, err)
	}
	ref := MessageRef{Channel: channel, TS: ts}
	r.records.Set(draftID, ref)
	return ref, nil
}

// Handle dispatches one event. Benign conditions such as a stale task index
// or a missing routing record return nil; only actionable failures surface
// as errors.
func (r *Router) Handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case ButtonPress:
		return r.handleButton(ctx, e)
	case ModalSubmit:
		return r.handleModalSubmit(ctx, e)
	case FileChangeNotice:
		if r.scanner != nil {
			r.scanner.TriggerScan()
		}
		return nil
	default:
		return fmt.Errorf("router: unknown event %T", ev)
	}
}

func (r *Router) handleButton(ctx context.Context, e ButtonPress) error {
	switch e.ActionID {
	case blocks.ActionEdit:
		d, err := r.drafts.Get(ctx, e.DraftID)
		if err != nil {
			return fmt.Errorf("edit %s: %w", e.DraftID, err)
		}
		return r.notifier.OpenView(ctx, e.TriggerID, blocks.EditModal(e.DraftID, d))

	case blocks.ActionApprove:
		return r.handleApprove(ctx, e)

	case blocks.ActionTaskComplete:
		return r.handleTaskComplete(ctx, e)

	default:
		logger.Warn("router: unhandled action %q", e.ActionID)
		return nil
	}
}

func (r *Router) handleApprove(ctx context.Context, e ButtonPress) error {
	d, err := r.drafts.Get(ctx, e.DraftID)
	if err != nil {
		return fmt.Errorf("approve %s: %w", e.DraftID, err)
	}

	// Routing record first; the press payload carries the coordinates when
	// the record was lost across a restart.
	ref, ok := r.records.Get(e.DraftID)
	if !ok || !ref.Valid() {
		ref = MessageRef{Channel: e.Channel, TS: e.MessageTS}
		r.records.Set(e.DraftID, ref)
	}
	if !ref.Valid() {
		return fmt.Errorf("approve %s: no message coordinates", e.DraftID)
	}

	if err := r.notifier.UpdateMessage(ctx, ref.Channel, ref.TS, "承認済み議事録", blocks.Approved(e.DraftID, d)); err != nil {
		return fmt.Errorf("approve %s: repaint: %w", e.DraftID, err)
	}
	if err := r.notifier.PostThread(ctx, ref.Channel, ref.TS, "ドキュメント生成・メール送信・Drive保存を実行中..."); err != nil {
		logger.Warn("router: progress note failed for %s: %v", e.DraftID, err)
	}

	if r.approver != nil {
		r.approver.Approve(ctx, d, ref)
	}
	return nil
}

// handleTaskComplete re-derives the task list from the draft's current
// actions text and flips the pressed entry in place. A value whose index no
// longer exists means the actions were edited after posting; the press is
// dropped without repainting.
func (r *Router) handleTaskComplete(ctx context.Context, e ButtonPress) error {
	draftID, idx, err := splitTaskValue(e.Value)
	if err != nil {
		logger.Warn("router: malformed task value %q: %v", e.Value, err)
		return nil
	}

	d, err := r.drafts.Get(ctx, draftID)
	if err != nil {
		return fmt.Errorf("task complete %s: %w", draftID, err)
	}
	tasks := minutes.ParseTasks(d.Actions)
	if idx < 0 || idx >= len(tasks) {
		logger.Warn("router: stale task index %d for draft %s (have %d tasks)", idx, draftID, len(tasks))
		return nil
	}

	raw, err := json.Marshal(blocks.Render(blocks.TaskList(draftID, d)))
	if err != nil {
		return fmt.Errorf("task complete %s: render: %w", draftID, err)
	}

	// Task i lives at block index i+1, after the header.
	blockPath := strconv.Itoa(idx + 1)
	text := gjson.GetBytes(raw, blockPath+".text.text").String()
	raw, err = sjson.SetBytes(raw, blockPath+".text.text", strings.Replace(text, "☐", "☑", 1))
	if err != nil {
		return fmt.Errorf("task complete %s: patch text: %w", draftID, err)
	}
	raw, err = sjson.SetBytes(raw, blockPath+".accessory", map[string]interface{}{
		"type":      "button",
		"text":      map[string]interface{}{"type": "plain_text", "text": "完了済み"},
		"style":     "primary",
		"value":     e.Value,
		"action_id": blocks.ActionTaskComplete,
		"disabled":  true,
	})
	if err != nil {
		return fmt.Errorf("task complete %s: patch accessory: %w", draftID, err)
	}

	return r.notifier.UpdateRawBlocks(ctx, e.Channel, e.MessageTS, "アクションアイテム＆タスク", raw)
}

func (r *Router) handleModalSubmit(ctx context.Context, e ModalSubmit) error {
	if e.CallbackID != blocks.CallbackEditSubmit {
		logger.Warn("router: unhandled modal callback %q", e.CallbackID)
		return nil
	}

	// Every content field is replaced wholesale with the modal's values;
	// the title resets to empty, matching the edit form which never shows
	// it.
	updated := minutes.Draft{
		ID:           e.DraftID,
		Title:        "",
		MeetingName:  e.Values["meeting_name"],
		DatetimeStr:  e.Values["datetime_str"],
		Participants: e.Values["participants"],
		Purpose:      e.Values["purpose"],
		Summary:      e.Values["summary"],
		Decisions:    e.Values["decisions"],
		Actions:      e.Values["actions"],
		Issues:       e.Values["issues"],
		Risks:        e.Values["risks"],
	}
	if err := r.drafts.Update(ctx, updated); err != nil {
		return fmt.Errorf("edit submit %s: %w", e.DraftID, err)
	}

	ref, ok := r.records.Get(e.DraftID)
	if !ok || !ref.Valid() {
		// Saved, but the posted message is unknown. Nothing to repaint.
		return nil
	}
	if err := r.notifier.UpdateMessage(ctx, ref.Channel, ref.TS, "下書きを更新しました", blocks.Preview(e.DraftID, updated)); err != nil {
		logger.Warn("router: preview repaint failed for %s: %v", e.DraftID, err)
	}
	return nil
}

func splitTaskValue(value string) (string, int, error) {
	sep := strings.LastIndex(value, ":")
	if sep <= 0 || sep == len(value)-1 {
		return "", 0, fmt.Errorf("expected draft_id:index, got %q", value)
	}
	idx, err := strconv.Atoi(value[sep+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bad index in %q: %w", value, err)
	}
	return value[:sep], idx, nil
}
