package minutes

import (
	"regexp"
	"strings"
)

// Task is one parsed line of a draft's actions text. Its position in the
// parsed list is the identity used by task-completion buttons, so the list
// must be re-derived from the current actions text before indexing into it.
type Task struct {
	Title    string
	Assignee string
	Due      string
}

var (
	// The summarizer emits both markers inside one bracket pair
	// （担当：X、期限：Y）; hand-edited drafts often carry them separately.
	combinedPattern = regexp.MustCompile(`（担当：([^）]*?)、期限：([^）]+)）`)
	assigneePattern = regexp.MustCompile(`（担当：([^）]+)）`)
	duePattern      = regexp.MustCompile(`（期限：([^）]+)）`)
)

// ParseTasks derives the task list from actions text. One task per non-empty
// line; a leading bullet is stripped, then the 担当 and 期限 bracket groups
// are extracted and removed from the title. Malformed brackets stay in the
// title as plain text. The function is pure: identical input yields
// identical output.
func ParseTasks(actionsText string) []Task {
	var tasks []Task
	for _, raw := range strings.Split(actionsText, "\n") {
		item := stripBullet(raw)
		if item == "" {
			continue
		}

		var assignee, due string
		if m := combinedPattern.FindStringSubmatch(item); m != nil {
			assignee = strings.TrimSpace(m[1])
			due = strings.TrimSpace(m[2])
			item = strings.TrimSpace(strings.Replace(item, m[0], "", 1))
		} else {
			if m := assigneePattern.FindStringSubmatch(item); m != nil {
				assignee = m[1]
				item = strings.TrimSpace(strings.Replace(item, m[0], "", 1))
			}
			if m := duePattern.FindStringSubmatch(item); m != nil {
				due = m[1]
				item = strings.TrimSpace(strings.Replace(item, m[0], "", 1))
			}
		}
		if item == "" {
			continue
		}
		tasks = append(tasks, Task{Title: item, Assignee: assignee, Due: due})
	}
	return tasks
}

func stripBullet(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "・")
	for _, prefix := range []string{"- ", "* "} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(s)
}
