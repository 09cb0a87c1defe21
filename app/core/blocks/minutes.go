package blocks

import (
	"fmt"

	"minutesbot/app/core/minutes"
)

const (
	ActionEdit         = "edit"
	ActionApprove      = "approve"
	ActionTaskComplete = "task_complete"
	CallbackEditSubmit = "edit_submit"
)

// Preview is the draft message posted for review: meeting metadata, the
// summary sections, and the edit/approve buttons.
func Preview(draftID string, d minutes.Draft) []Block {
	tree := []Block{
		Header{Text: "議事録ボット"},
		Section{
			Text: " ",
			Fields: []string{
				"*会議名:*\n" + d.DisplayName(),
				"*日時:*\n" + orDash(d.DatetimeStr),
				"*参加者:*\n" + orDash(d.Participants),
				"*目的:*\n" + orDash(d.Purpose),
			},
		},
		Divider{},
		mdSection("サマリー", d.Summary),
		mdSection("決定事項", d.Decisions),
		mdSection("未決定事項", d.Issues),
	}
	if d.Actions != "" {
		tree = append(tree, mdSection("アクション", d.Actions))
	}
	if d.Risks != "" {
		tree = append(tree, mdSection("リスク", d.Risks))
	}
	tree = append(tree, Actions{Buttons: []Button{
		{Text: "編集", ActionID: ActionEdit, Value: draftID},
		{Text: "承認", ActionID: ActionApprove, Value: draftID, Style: "primary"},
	}})
	return tree
}

// Approved is the preview with the buttons removed and an approved banner on
// top, used when the posted message transitions out of the editable state.
func Approved(draftID string, d minutes.Draft) []Block {
	preview := Preview(draftID, d)
	tree := []Block{Section{Text: "*✅ 承認済み議事録*"}}
	return append(tree, preview[:len(preview)-1]...)
}

// TaskList renders one section per parsed task with a completion button.
// Block index i+1 addresses task i, which is what the completion handler
// patches in place.
func TaskList(draftID string, d minutes.Draft) []Block {
	tasks := minutes.ParseTasks(d.Actions)
	if len(tasks) == 0 {
		return []Block{Section{Text: "アクションアイテムは登録されていません。"}}
	}

	tree := []Block{Header{Text: "✅ アクションアイテム＆タスク"}}
	for i, t := range tasks {
		section := Section{
			Text: "☐ " + t.Title,
			Accessory: &Button{
				Text:     "完了",
				ActionID: ActionTaskComplete,
				Value:    fmt.Sprintf("%s:%d", draftID, i),
			},
		}
		if t.Assignee != "" {
			section.Fields = append(section.Fields, "*担当:*\n"+t.Assignee)
		}
		if t.Due != "" {
			section.Fields = append(section.Fields, "*期限:*\n"+t.Due)
		}
		tree = append(tree, section)
	}
	return tree
}

// EditModal builds the views.open payload pre-filled with the draft's
// current fields. The draft id travels in private_metadata.
func EditModal(draftID string, d minutes.Draft) map[string]interface{} {
	inputs := []struct {
		blockID   string
		label     string
		value     string
		multiline bool
	}{
		{"meeting_name", "会議名", d.MeetingName, false},
		{"datetime_str", "日時", d.DatetimeStr, false},
		{"participants", "参加者", d.Participants, false},
		{"purpose", "目的", d.Purpose, true},
		{"summary", "サマリー", d.Summary, true},
		{"decisions", "決定事項", d.Decisions, true},
		{"issues", "未決定事項", d.Issues, true},
		{"actions", "アクション", d.Actions, true},
		{"risks", "リスク", d.Risks, true},
	}

	viewBlocks := make([]map[string]interface{}, 0, len(inputs))
	for _, in := range inputs {
		element := map[string]interface{}{
			"type":          "plain_text_input",
			"action_id":     "inp",
			"initial_value": in.value,
		}
		if in.multiline {
			element["multiline"] = true
		}
		viewBlocks = append(viewBlocks, map[string]interface{}{
			"type":     "input",
			"block_id": in.blockID,
			"label":    map[string]interface{}{"type": "plain_text", "text": in.label},
			"element":  element,
		})
	}

	return map[string]interface{}{
		"type":             "modal",
		"callback_id":      CallbackEditSubmit,
		"private_metadata": draftID,
		"title":            map[string]interface{}{"type": "plain_text", "text": "議事録 編集"},
		"submit":           map[string]interface{}{"type": "plain_text", "text": "保存"},
		"close":            map[string]interface{}{"type": "plain_text", "text": "キャンセル"},
		"blocks":           viewBlocks,
	}
}

func mdSection(label, text string) Section {
	return Section{Text: fmt.Sprintf("*%s*\n%s", label, orDash(text))}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
