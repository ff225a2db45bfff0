package dialogue

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Intent is the classified purpose of one conversational turn.
type Intent string

const (
	IntentBook       Intent = "book"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentStatus     Intent = "status"
	IntentFAQ        Intent = "faq"
	IntentGreeting   Intent = "greeting"
	IntentUnclear    Intent = "unclear"
)

var greetingRE = regexp.MustCompile(`^(hi|hello|hey|good (morning|afternoon|evening)|howdy)\b[\s!.,]*$`)

var faqTopicWords = []string{
	"hours", "open", "close", "insurance", "parking", "cost", "price",
	"location", "address", "where", "policy", "policies", "services",
	"language", "languages", "payment", "fee", "fees", "accept", "offer",
	"phone", "directions",
}

var questionStarters = []string{
	"what", "where", "when", "how", "do you", "does", "is there",
	"are there", "can i", "could i", "tell me",
}

// ClassifyIntent is the deterministic keyword classifier. It is the fallback
// behind any LLM classifier and the only classifier in offline deployments.
func ClassifyIntent(text string) Intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return IntentUnclear
	}

	if greetingRE.MatchString(t) {
		return IntentGreeting
	}

	// Policy questions mention cancel/reschedule without requesting one.
	if looksLikeQuestion(t) && containsAny(t, "policy", "fee", "charge", "how much", "cost") {
		return IntentFAQ
	}

	switch {
	case strings.Contains(t, "reschedule"),
		strings.Contains(t, "change my appointment"),
		strings.Contains(t, "move my appointment"),
		strings.Contains(t, "change the appointment"):
		return IntentReschedule
	case strings.Contains(t, "cancel"):
		return IntentCancel
	case strings.Contains(t, "status"),
		strings.Contains(t, "check my appointment"),
		strings.Contains(t, "look up my appointment"),
		strings.Contains(t, "my confirmation"):
		return IntentStatus
	}

	if containsAny(t, "book", "schedule", "appointment", "see a doctor", "see the doctor", "come in for", "make an appointment", "need a checkup", "check-up", "consultation") {
		// "do you do vaccinations?" reads as a question, not a booking.
		if !looksLikeQuestion(t) || containsAny(t, "book", "schedule", "make an appointment") {
			return IntentBook
		}
	}

	if looksLikeQuestion(t) || containsAny(t, faqTopicWords...) {
		return IntentFAQ
	}

	return IntentUnclear
}

func looksLikeQuestion(t string) bool {
	if strings.Contains(t, "?") {
		return true
	}
	for _, s := range questionStarters {
		if strings.HasPrefix(t, s+" ") {
			return true
		}
	}
	return false
}

func containsAny(t string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

const intentClassifierPrompt = `Classify this patient message into ONE intent. Respond with JSON only.

Intents:
- book: wants to schedule a new appointment
- reschedule: wants to move an existing appointment
- cancel: wants to cancel an existing appointment
- status: wants to look up an existing appointment
- faq: asks about the clinic (hours, insurance, parking, prices, services, location)
- greeting: a plain greeting with no request
- unclear: anything else

Message: %s

Respond with: {"intent": "<intent_name>"}`

var validIntents = map[Intent]struct{}{
	IntentBook: {}, IntentReschedule: {}, IntentCancel: {}, IntentStatus: {},
	IntentFAQ: {}, IntentGreeting: {}, IntentUnclear: {},
}

// IntentClassifier resolves a turn's intent.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) Intent
}

// KeywordClassifier is the zero-dependency classifier.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) Intent {
	return ClassifyIntent(text)
}

// LLMIntentClassifier asks an LLM first and falls back to keywords on any
// error, malformed response, or unknown label.
type LLMIntentClassifier struct {
	client LLMClient
}

// NewLLMIntentClassifier wraps an LLM client. A nil client panics; use
// KeywordClassifier when no backend is configured.
func NewLLMIntentClassifier(client LLMClient) *LLMIntentClassifier {
	if client == nil {
		panic("dialogue: llm client cannot be nil")
	}
	return &LLMIntentClassifier{client: client}
}

func (c *LLMIntentClassifier) Classify(ctx context.Context, text string) Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return IntentUnclear
	}

	prompt := strings.Replace(intentClassifierPrompt, "%s", text, 1)
	resp, err := c.client.Complete(ctx, LLMRequest{
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens: 50,
	})
	if err != nil {
		return ClassifyIntent(text)
	}

	content := strings.TrimSpace(resp.Text)
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}
	var result struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return ClassifyIntent(text)
	}
	intent := Intent(result.Intent)
	if _, ok := validIntents[intent]; !ok {
		return ClassifyIntent(text)
	}
	return intent
}
