package digest

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// promptPrefix marks user-authored entries in the digest.
const promptPrefix = "[PROMPT] "

var noiseTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`),
	regexp.MustCompile(`(?s)<local-command[^>]*>.*?</local-command[^>]*>`),
	regexp.MustCompile(`(?s)<teammate-message[^>]*>.*?</teammate-message[^>]*>`),
}

var noiseTagMarkers = []string{"<system-reminder>", "<local-command", "<teammate-message"}

// codexEventNoise lists event_msg payload types that carry no digest value.
var codexEventNoise = map[string]struct{}{
	"agent_reasoning": {},
	"token_count":     {},
	"task_started":    {},
	"turn_context":    {},
	"user_message":    {},
}

// codexTextBlocks lists the message content block types that are kept.
var codexTextBlocks = map[string]struct{}{
	"output_text":  {},
	"input_text":   {},
	"text":         {},
	"summary_text": {},
}

// parseLines converts raw JSONL lines to items in file order. Lines that
// fail to parse are dropped.
func parseLines(lines []string, source string) []item {
	var items []item
	for _, line := range lines {
		var parsed []item
		if source == SourceCodex {
			parsed = parseCodexLine(line)
		} else {
			parsed = parseClaudeLine(line)
		}
		items = append(items, parsed...)
	}
	return items
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeLine struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	IsMeta    bool   `json:"isMeta"`
	Message   struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

func parseClaudeLine(line string) []item {
	var l claudeLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		return nil
	}
	ts := parseTimestamp(l.Timestamp)

	switch l.Type {
	case "assistant":
		var blocks []contentBlock
		if err := json.Unmarshal(l.Message.Content, &blocks); err != nil {
			return nil
		}
		var items []item
		hasText := false
		for _, b := range blocks {
			if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
				hasText = true
				items = append(items, item{
					role: "assistant", text: b.Text, isText: true, timestamp: ts,
				})
			}
		}
		if !hasText {
			for _, b := range blocks {
				if b.Type == "tool_use" {
					return []item{{role: "assistant", isToolUse: true, timestamp: ts}}
				}
			}
		}
		return items
	case "user":
		if l.IsMeta {
			return nil
		}
		var text string
		if err := json.Unmarshal(l.Message.Content, &text); err != nil {
			// Array content on user lines is tool results; not digest text.
			return nil
		}
		if text == "" || containsNoiseTag(text) {
			return nil
		}
		return []item{{role: "user", text: text, isText: true, isPrompt: true, timestamp: ts}}
	}
	return nil
}

type codexLine struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Role      string `json:"role"`
	Content   json.RawMessage `json:"content"`
	Payload   json.RawMessage `json:"payload"`
}

type codexPayload struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Message string          `json:"message"`
	Content json.RawMessage `json:"content"`
}

func parseCodexLine(line string) []item {
	var l codexLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		return nil
	}
	ts := parseTimestamp(l.Timestamp)

	switch l.Type {
	case "event_msg":
		var p codexPayload
		if err := json.Unmarshal(l.Payload, &p); err != nil {
			return nil
		}
		if _, noise := codexEventNoise[p.Type]; noise {
			return nil
		}
		if strings.TrimSpace(p.Message) == "" {
			return nil
		}
		return []item{{role: "assistant", text: p.Message, isText: true, timestamp: ts}}
	case "response_item":
		var p codexPayload
		if err := json.Unmarshal(l.Payload, &p); err != nil {
			return nil
		}
		switch p.Type {
		case "message":
			return codexMessageItems(p.Role, p.Content, ts)
		case "function_call":
			return []item{{role: "assistant", isToolUse: true, timestamp: ts}}
		}
		return nil
	case "message":
		return codexMessageItems(l.Role, l.Content, ts)
	case "function_call":
		return []item{{role: "assistant", isToolUse: true, timestamp: ts}}
	case "session_meta", "function_call_output", "reasoning":
		return nil
	}
	return nil
}

func codexMessageItems(role string, content json.RawMessage, ts time.Time) []item {
	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil
	}
	if role == "" {
		role = "assistant"
	}
	isPrompt := role == "user"
	var items []item
	for _, b := range blocks {
		if _, keep := codexTextBlocks[b.Type]; !keep {
			continue
		}
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		items = append(items, item{
			role: role, text: b.Text, isText: true, isPrompt: isPrompt, timestamp: ts,
		})
	}
	return items
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func containsNoiseTag(text string) bool {
	for _, marker := range noiseTagMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// stripNoiseTags removes embedded noise tag segments from kept text.
func stripNoiseTags(text string) string {
	for _, pattern := range noiseTagPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// truncate cuts text to its first sentence, then to maxLength runes,
// appending an ellipsis when anything was removed. maxLength 0 disables
// the length cut.
func truncate(text string, maxLength int) string {
	text = strings.TrimSpace(text)
	cut := false

	if idx := firstSentenceEnd(text); idx > 0 && idx < len(text) {
		text = strings.TrimSpace(text[:idx])
		cut = true
	}
	if maxLength > 0 {
		runes := []rune(text)
		if len(runes) > maxLength {
			text = strings.TrimSpace(string(runes[:maxLength]))
			cut = true
		}
	}
	if cut {
		text += "…"
	}
	return text
}

// firstSentenceEnd returns the byte offset just past the first sentence
// terminator, or -1.
func firstSentenceEnd(text string) int {
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				return i + 1
			}
		}
	}
	return -1
}

// dedupe drops consecutive entries that repeat the same text within one
// second.
func dedupe(entries []Entry) []Entry {
	if len(entries) < 2 {
		return entries
	}
	out := entries[:1]
	for _, e := range entries[1:] {
		prev := out[len(out)-1]
		if e.Source == prev.Source && e.Text == prev.Text && withinOneSecond(e.Timestamp, prev.Timestamp) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func withinOneSecond(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= time.Second
}
