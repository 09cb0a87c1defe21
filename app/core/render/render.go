// Package render turns an approved draft into the markdown documents the
// fan-out distributes: the minutes themselves and a design checklist derived
// from the action items.
package render

import (
	"fmt"
	"strings"
	"time"

	"minutesbot/app/core/minutes"
)

// Minutes renders the approved draft as a standalone markdown document.
func Minutes(d minutes.Draft, approvedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 議事録: %s\n\n", d.DisplayName())
	fmt.Fprintf(&b, "- **日時**: %s\n", orNone(d.DatetimeStr))
	fmt.Fprintf(&b, "- **参加者**: %s\n", orNone(d.Participants))
	fmt.Fprintf(&b, "- **目的**: %s\n", orNone(d.Purpose))
	fmt.Fprintf(&b, "- **承認日時**: %s\n\n", approvedAt.Format("2006-01-02 15:04"))

	section(&b, "サマリー", d.Summary)
	section(&b, "決定事項", d.Decisions)
	section(&b, "未決定事項", d.Issues)
	section(&b, "アクションアイテム", d.Actions)
	section(&b, "リスク", d.Risks)
	return b.String()
}

// DesignChecklist renders the follow-up checklist document. Each parsed task
// gets readiness, handoff, and completion gates; an actions text without
// parsable tasks still produces the document skeleton.
func DesignChecklist(d minutes.Draft, approvedAt time.Time) string {
	tasks := minutes.ParseTasks(d.Actions)

	var b strings.Builder
	fmt.Fprintf(&b, "# 設計チェックリスト: %s\n\n", d.DisplayName())
	fmt.Fprintf(&b, "作成日: %s\n\n", approvedAt.Format("2006-01-02"))

	if len(tasks) == 0 {
		b.WriteString("対象となるアクションアイテムはありません。\n")
		return b.String()
	}

	for i, t := range tasks {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, t.Title)
		if t.Assignee != "" {
			fmt.Fprintf(&b, "- 担当: %s\n", t.Assignee)
		}
		if t.Due != "" {
			fmt.Fprintf(&b, "- 期限: %s\n", t.Due)
		}
		b.WriteString("\n### Definition of Ready\n")
		b.WriteString("- [ ] 目的と完了条件が明文化されている\n")
		b.WriteString("- [ ] 依存する決定事項が承認済みである\n")
		b.WriteString("- [ ] 担当と期限が確定している\n")
		b.WriteString("\n### 引き継ぎ\n")
		b.WriteString("- [ ] 関連資料へのリンクが揃っている\n")
		b.WriteString("- [ ] 未決定事項のうち影響するものを共有した\n")
		b.WriteString("\n### Definition of Done\n")
		b.WriteString("- [ ] 成果物がレビューされた\n")
		b.WriteString("- [ ] リスク欄の懸念が解消または記録された\n")
		b.WriteString("- [ ] 完了をスレッドで報告した\n\n")
	}
	return b.String()
}

func section(b *strings.Builder, label, text string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", label, orNone(text))
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "特になし"
	}
	return s
}
