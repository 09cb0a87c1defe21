package minutes

import (
	"reflect"
	"testing"
)

func TestParseTasksExtractsAssigneeAndDue(t *testing.T) {
	tasks := ParseTasks("・Buy milk（担当：Tanaka、期限：10/25）")
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.Title != "Buy milk" {
		t.Fatalf("unexpected title: %q", got.Title)
	}
	if got.Assignee != "Tanaka" {
		t.Fatalf("unexpected assignee: %q", got.Assignee)
	}
	if got.Due != "10/25" {
		t.Fatalf("unexpected due: %q", got.Due)
	}
}

func TestParseTasksSeparateBrackets(t *testing.T) {
	tasks := ParseTasks("・デッキを準備する（担当：田中）（期限：10/20）")
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Title != "デッキを準備する" || tasks[0].Assignee != "田中" || tasks[0].Due != "10/20" {
		t.Fatalf("unexpected task: %+v", tasks[0])
	}
}

func TestParseTasksLineWithoutBrackets(t *testing.T) {
	tasks := ParseTasks("  follow up with legal  ")
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Title != "follow up with legal" {
		t.Fatalf("unexpected title: %q", tasks[0].Title)
	}
	if tasks[0].Assignee != "" || tasks[0].Due != "" {
		t.Fatalf("expected empty assignee/due, got %+v", tasks[0])
	}
}

func TestParseTasksSkipsEmptyLines(t *testing.T) {
	tasks := ParseTasks("・one\n\n・\n・（担当：A、期限：B）\n・two")
	// The bracket-only line loses its whole body after marker stripping and
	// the 期限 marker stays inside the 担当 group, leaving a non-empty title
	// only for "one" and "two" plus the stripped bracket line.
	if len(tasks) < 2 {
		t.Fatalf("expected at least 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "one" {
		t.Fatalf("unexpected first task: %+v", tasks[0])
	}
	if tasks[len(tasks)-1].Title != "two" {
		t.Fatalf("unexpected last task: %+v", tasks[len(tasks)-1])
	}
}

func TestParseTasksMalformedBracketsKeptAsText(t *testing.T) {
	tasks := ParseTasks("・ship it（担当：Suzuki")
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Assignee != "" {
		t.Fatalf("unclosed bracket must not yield an assignee: %+v", tasks[0])
	}
	if tasks[0].Title != "ship it（担当：Suzuki" {
		t.Fatalf("unexpected title: %q", tasks[0].Title)
	}
}

func TestParseTasksDeterministic(t *testing.T) {
	input := "・A（担当：X、期限：1/2）\n・B\n- C（期限：2025/03/04）"
	first := ParseTasks(input)
	second := ParseTasks(input)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("parse not deterministic:\n%+v\n%+v", first, second)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(first))
	}
	if first[2].Title != "C" || first[2].Due != "2025/03/04" {
		t.Fatalf("unexpected third task: %+v", first[2])
	}
}

func TestDisplayNameClipsLongNames(t *testing.T) {
	d := Draft{MeetingName: "Q3プロジェクトロードマッププレビュー"}
	got := d.DisplayName()
	if got != "Q3プロジェクトロー..." {
		t.Fatalf("unexpected display name: %q", got)
	}

	if (Draft{}).DisplayName() != "（無題）" {
		t.Fatal("expected placeholder for empty draft")
	}
	if (Draft{Title: "kickoff"}).DisplayName() != "kickoff" {
		t.Fatal("expected fallback to title")
	}
}
