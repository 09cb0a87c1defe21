// Package blocks models posted messages as a small tagged-variant document
// tree and renders it to Slack Block Kit JSON. Keeping construction separate
// from the transport lets message layout be tested without a live
// connection.
package blocks

// Block is the tagged union of message nodes.
type Block interface {
	render() map[string]interface{}
}

type Header struct {
	Text string
}

type Divider struct{}

// Section is markdown body text with optional side fields and an optional
// button accessory.
type Section struct {
	Text      string
	Fields    []string
	Accessory *Button
}

type Actions struct {
	Buttons []Button
}

type Button struct {
	Text     string
	ActionID string
	Value    string
	Style    string
	Disabled bool
}

func (h Header) render() map[string]interface{} {
	return map[string]interface{}{
		"type": "header",
		"text": map[string]interface{}{"type": "plain_text", "text": h.Text},
	}
}

func (Divider) render() map[string]interface{} {
	return map[string]interface{}{"type": "divider"}
}

func (s Section) render() map[string]interface{} {
	node := map[string]interface{}{
		"type": "section",
		"text": map[string]interface{}{"type": "mrkdwn", "text": s.Text},
	}
	if len(s.Fields) > 0 {
		fields := make([]map[string]interface{}, 0, len(s.Fields))
		for _, f := range s.Fields {
			fields = append(fields, map[string]interface{}{"type": "mrkdwn", "text": f})
		}
		node["fields"] = fields
	}
	if s.Accessory != nil {
		node["accessory"] = s.Accessory.render()
	}
	return node
}

func (a Actions) render() map[string]interface{} {
	elements := make([]map[string]interface{}, 0, len(a.Buttons))
	for _, b := range a.Buttons {
		elements = append(elements, b.render())
	}
	return map[string]interface{}{"type": "actions", "elements": elements}
}

func (b Button) render() map[string]interface{} {
	node := map[string]interface{}{
		"type":      "button",
		"text":      map[string]interface{}{"type": "plain_text", "text": b.Text},
		"action_id": b.ActionID,
		"value":     b.Value,
	}
	if b.Style != "" {
		node["style"] = b.Style
	}
	if b.Disabled {
		node["disabled"] = true
	}
	return node
}

// Render flattens the tree into the JSON-marshalable structure the Slack API
// expects.
func Render(tree []Block) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tree))
	for _, b := range tree {
		out = append(out, b.render())
	}
	return out
}
