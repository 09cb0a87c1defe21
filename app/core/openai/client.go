// Package openai wraps the transcription and structured-summarization
// collaborators. The rest of the system consumes them through the pipeline's
// Transcriber/Summarizer interfaces, so everything here is swappable.
package openai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"

	"minutesbot/app/core/minutes"
)

const summarySystemPrompt = `You are a meeting minutes assistant. Analyze the transcript and return JSON with the following structure:

Required fields (extract from transcript or infer):
- meeting_name: Meeting title or topic (extract if mentioned, otherwise use first few sentences)
- datetime_str: Date and time if available in transcript, otherwise leave empty
- participants: List of participants mentioned (convert to string: "name1, name2, ...")
- purpose: Meeting purpose or agenda
- summary: Overall summary of the meeting (important - this should be a comprehensive paragraph)
- decisions: Decisions made during the meeting (use bullet points with "・" prefix for multiple items)
- actions: Action items extracted from transcript - MUST identify tasks mentioned even if assignee/date not specified.
  Format each as: "・task_description（担当：person_name、期限：estimated_date）"
  If no assignee mentioned, infer from context or use "担当：未定"
  If no date mentioned, estimate reasonable deadline or use "期限：未定"
- issues: Open issues or concerns that remain unresolved (use bullet points with "・" prefix)
- risks: Identified risks, challenges, or potential problems (use bullet points with "・" prefix)

CRITICAL:
- You MUST extract actions from the transcript even if not explicitly stated as "action items"
- Look for phrases like "next steps", "we should", "need to", "will do", etc.
- Always populate actions field - if nothing specific, at least extract implicit tasks from the summary
- risks field must be populated - identify any potential problems, challenges, or concerns mentioned

Return ALL fields as strings. For multi-line content, use newline characters.`

type Client struct {
	oa openai.Client
}

func NewClient(apiKey string) *Client {
	return &Client{oa: openai.NewClient(option.WithAPIKey(apiKey))}
}

// Transcribe runs Whisper over an audio file and returns the transcript
// text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	result, err := c.oa.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  f,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return result.Text, nil
}

// Summarize asks the model for a structured JSON summary and normalizes it
// into a Draft. A response that is not valid JSON becomes a draft whose
// summary is the raw content, so a sloppy model answer still produces a
// reviewable draft instead of an error.
func (c *Client) Summarize(ctx context.Context, transcript string) (minutes.Draft, error) {
	resp, err := c.oa.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystemPrompt),
			openai.UserMessage("以下は会議の文字起こしです。日本語で要約してください。\n---\n" + transcript),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return minutes.Draft{}, fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return minutes.Draft{}, fmt.Errorf("summarize: empty response")
	}
	return DraftFromModelJSON(resp.Choices[0].Message.Content), nil
}

// DraftFromModelJSON converts raw model output into a Draft, tolerating code
// fences, list-valued fields, and object-shaped action items.
func DraftFromModelJSON(content string) minutes.Draft {
	content = stripCodeFence(strings.TrimSpace(content))
	if !gjson.Valid(content) {
		return minutes.Draft{Summary: content}
	}

	parsed := gjson.Parse(content)
	actions := normalizeBullets(parsed.Get("actions"))
	if strings.TrimSpace(actions) == "" {
		actions = "アクションアイテムが特定できませんでした"
	}
	risks := normalizeBullets(parsed.Get("risks"))
	if strings.TrimSpace(risks) == "" {
		risks = "特になし"
	}

	return minutes.Draft{
		Summary:      normalizeBullets(parsed.Get("summary")),
		Decisions:    normalizeBullets(parsed.Get("decisions")),
		Actions:      actions,
		Issues:       normalizeBullets(parsed.Get("issues")),
		MeetingName:  flatten(parsed.Get("meeting_name")),
		DatetimeStr:  flatten(parsed.Get("datetime_str")),
		Participants: flatten(parsed.Get("participants")),
		Purpose:      flatten(parsed.Get("purpose")),
		Risks:        risks,
	}
}

func stripCodeFence(content string) string {
	if !strings.Contains(content, "```") {
		return content
	}
	parts := strings.Split(content, "```")
	if len(parts) < 2 {
		return content
	}
	inner := parts[1]
	if rest, ok := strings.CutPrefix(strings.TrimSpace(inner), "json"); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(inner)
}

// normalizeBullets renders a field that may arrive as a string, a list, or
// an object into ・-bulleted text.
func normalizeBullets(field gjson.Result) string {
	switch {
	case field.IsArray():
		var lines []string
		field.ForEach(func(_, item gjson.Result) bool {
			lines = append(lines, "・"+itemText(item))
			return true
		})
		return strings.Join(lines, "\n")
	case field.IsObject():
		return itemText(field)
	default:
		return field.String()
	}
}

// itemText renders one list element; the model sometimes emits
// {"action": ..., "responsible": ...} objects instead of strings.
func itemText(item gjson.Result) string {
	if item.IsObject() {
		action := item.Get("action")
		responsible := item.Get("responsible")
		switch {
		case action.Exists() && responsible.Exists():
			return fmt.Sprintf("%s（担当：%s）", action.String(), responsible.String())
		case action.Exists():
			return action.String()
		default:
			var pairs []string
			item.ForEach(func(key, value gjson.Result) bool {
				pairs = append(pairs, fmt.Sprintf("%s: %s", key.String(), value.String()))
				return true
			})
			return strings.Join(pairs, ", ")
		}
	}
	return item.String()
}

// flatten renders scalar-ish metadata fields; lists become comma-joined
// strings.
func flatten(field gjson.Result) string {
	if field.IsArray() {
		var parts []string
		field.ForEach(func(_, item gjson.Result) bool {
			parts = append(parts, item.String())
			return true
		})
		return strings.Join(parts, ", ")
	}
	return field.String()
}
