// Package advice turns raw AI model output — possibly wrapped in reasoning
// markup, markdown code fences, or surrounding prose — into a structured
// advice payload with a bounded list of trade actions.
//
// Extraction never fails hard: when no JSON object can be located or
// decoded, the entire raw text becomes the advice and the action list is
// empty. Degenerate actions are filtered downstream by the trade engine.
package advice

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

// Result is a structured advice payload.
type Result struct {
	Advice  string              `json:"advice"`
	Actions []model.TradeAction `json:"actions"`
}

var (
	// thinkRe removes paired reasoning blocks some models emit before the
	// real answer.
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

	// objectRe grabs the first '{' through the last '}', newlines included.
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// Extract parses a raw model response into advice text plus actions.
func Extract(raw string) Result {
	candidate := findObject(raw)
	if candidate == "" {
		return Result{Advice: strings.TrimSpace(raw)}
	}

	var r Result
	if err := json.Unmarshal([]byte(candidate), &r); err != nil {
		// Malformed object: fall back to the raw text as unstructured advice.
		return Result{Advice: strings.TrimSpace(raw)}
	}
	if r.Advice == "" {
		r.Advice = strings.TrimSpace(raw)
	}
	return r
}

// JSONObject returns the best JSON object candidate embedded in raw model
// output, with reasoning blocks and code fences stripped. Empty string
// means none found. Collection channels use this for payloads with their
// own schemas.
func JSONObject(raw string) string {
	return findObject(raw)
}

// findObject strips reasoning blocks and code fences, then locates the
// best JSON object candidate. Empty string means none found.
func findObject(raw string) string {
	s := thinkRe.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	return objectRe.FindString(s)
}

// Label anchors for single-field tagging. Both Chinese and English variants
// occur in model output depending on the prompt channel.
var (
	sentimentAnchors = []string{"情绪：", "情绪:", "情感：", "情感:", "sentiment：", "sentiment:"}
	impactAnchors    = []string{"影响分数：", "影响分数:", "影响程度：", "影响程度:", "impact_score：", "impact_score:", "impact score:"}

	digitsRe = regexp.MustCompile(`-?\d+`)
)

// Tag pulls a sentiment token and a numeric impact score out of loosely
// structured analysis text using keyword anchors. Defaults are "unknown"
// and "0" when no anchor is found.
func Tag(raw string) (sentiment, impact string) {
	sentiment, impact = "unknown", "0"
	text := strings.TrimSpace(raw)
	if text == "" {
		return sentiment, impact
	}

	if v, ok := fieldAfter(text, sentimentAnchors); ok {
		sentiment = normalizeSentiment(v)
	}
	if v, ok := fieldAfter(text, impactAnchors); ok {
		if n := digitsRe.FindString(v); n != "" {
			impact = n
		}
	}
	return sentiment, impact
}

// fieldAfter returns the text between the first matching anchor and the
// next field delimiter (；, ;, or newline).
func fieldAfter(text string, anchors []string) (string, bool) {
	for _, anchor := range anchors {
		idx := strings.Index(strings.ToLower(text), strings.ToLower(anchor))
		if idx < 0 {
			continue
		}
		rest := text[idx+len(anchor):]
		if end := strings.IndexAny(rest, "；;\n"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// normalizeSentiment maps free-form sentiment wording onto the fixed
// vocabulary used throughout the system.
func normalizeSentiment(v string) string {
	switch {
	case containsAny(v, "负面", "下跌", "利空", "negative", "bearish"):
		return "negative"
	case containsAny(v, "正面", "上涨", "利好", "positive", "bullish"):
		return "positive"
	case containsAny(v, "中性", "无明显", "neutral"):
		return "neutral"
	case v == "":
		return "unknown"
	}
	return strings.ToLower(v)
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// SentimentFromScore derives the sentiment tag for a signed influence
// score as reported by the news collection channel (−2…2).
func SentimentFromScore(score int) string {
	switch {
	case score >= 1:
		return "positive"
	case score <= -1:
		return "negative"
	}
	return "neutral"
}
