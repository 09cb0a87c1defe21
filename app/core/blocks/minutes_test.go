package blocks

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"

	"minutesbot/app/core/minutes"
)

func renderJSON(t *testing.T, tree []Block) string {
	t.Helper()
	data, err := json.Marshal(Render(tree))
	if err != nil {
		t.Fatalf("marshal blocks: %v", err)
	}
	return string(data)
}

func TestPreviewCarriesButtonsAndDraftID(t *testing.T) {
	d := minutes.Draft{MeetingName: "sync", Summary: "short", Actions: "・do it"}
	raw := renderJSON(t, Preview("draft-9", d))

	buttons := gjson.Get(raw, `#(type=="actions").elements`)
	if !buttons.Exists() {
		t.Fatalf("no actions block in %s", raw)
	}
	if got := buttons.Get("0.action_id").String(); got != "edit" {
		t.Fatalf("unexpected first button: %s", got)
	}
	if got := buttons.Get("1.action_id").String(); got != "approve" {
		t.Fatalf("unexpected second button: %s", got)
	}
	if got := buttons.Get("1.value").String(); got != "draft-9" {
		t.Fatalf("approve button must carry the draft id, got %q", got)
	}
	if got := buttons.Get("1.style").String(); got != "primary" {
		t.Fatalf("approve button style: %q", got)
	}
}

func TestPreviewOmitsEmptyOptionalSections(t *testing.T) {
	raw := renderJSON(t, Preview("d", minutes.Draft{Summary: "s"}))
	if gjson.Get(raw, `#(text.text%"*アクション*")`).Exists() {
		t.Fatal("empty actions must not render a section")
	}
	if gjson.Get(raw, `#(text.text%"*リスク*")`).Exists() {
		t.Fatal("empty risks must not render a section")
	}
}

func TestApprovedDropsButtons(t *testing.T) {
	d := minutes.Draft{Summary: "s", Actions: "・a"}
	raw := renderJSON(t, Approved("d", d))

	if gjson.Get(raw, `#(type=="actions")`).Exists() {
		t.Fatal("approved rendering must not keep the buttons")
	}
	if got := gjson.Get(raw, "0.text.text").String(); got != "*✅ 承認済み議事録*" {
		t.Fatalf("unexpected banner: %q", got)
	}
}

func TestTaskListAddressesTasksByIndex(t *testing.T) {
	d := minutes.Draft{Actions: "・first（担当：Tanaka、期限：10/25）\n・second"}
	raw := renderJSON(t, TaskList("draft-1", d))

	if got := gjson.Get(raw, "1.accessory.value").String(); got != "draft-1:0" {
		t.Fatalf("unexpected first task value: %q", got)
	}
	if got := gjson.Get(raw, "2.accessory.value").String(); got != "draft-1:1" {
		t.Fatalf("unexpected second task value: %q", got)
	}
	if got := gjson.Get(raw, "1.text.text").String(); got != "☐ first" {
		t.Fatalf("unexpected task text: %q", got)
	}
	if got := gjson.Get(raw, "1.fields.0.text").String(); got != "*担当:*\nTanaka" {
		t.Fatalf("unexpected assignee field: %q", got)
	}
}

func TestTaskListEmptyActions(t *testing.T) {
	raw := renderJSON(t, TaskList("d", minutes.Draft{}))
	if got := gjson.Get(raw, "0.text.text").String(); got != "アクションアイテムは登録されていません。" {
		t.Fatalf("unexpected placeholder: %q", got)
	}
}

func TestEditModalPrefillsFields(t *testing.T) {
	d := minutes.Draft{MeetingName: "kickoff", Summary: "sum", Actions: "・a"}
	view, err := json.Marshal(EditModal("draft-2", d))
	if err != nil {
		t.Fatalf("marshal view: %v", err)
	}
	raw := string(view)

	if got := gjson.Get(raw, "callback_id").String(); got != "edit_submit" {
		t.Fatalf("unexpected callback id: %q", got)
	}
	if got := gjson.Get(raw, "private_metadata").String(); got != "draft-2" {
		t.Fatalf("unexpected private metadata: %q", got)
	}
	if got := gjson.Get(raw, `blocks.#(block_id=="meeting_name").element.initial_value`).String(); got != "kickoff" {
		t.Fatalf("meeting name not prefilled: %q", got)
	}
	if got := gjson.Get(raw, `blocks.#(block_id=="summary").element.multiline`).Bool(); !got {
		t.Fatal("summary input should be multiline")
	}
}
