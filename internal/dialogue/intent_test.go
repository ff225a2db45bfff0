package dialogue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"Hello!", IntentGreeting},
		{"good morning", IntentGreeting},
		{"I'd like to book an appointment", IntentBook},
		{"Can I schedule a checkup for next week?", IntentBook},
		{"I need to see a doctor", IntentBook},
		{"I need to reschedule my appointment", IntentReschedule},
		{"please move my appointment to Friday", IntentReschedule},
		{"I want to cancel my appointment", IntentCancel},
		{"what's the status of my booking APT20260105090000001", IntentStatus},
		{"What are your hours?", IntentFAQ},
		{"do you take Blue Cross insurance", IntentFAQ},
		{"What is your cancellation policy?", IntentFAQ},
		{"How much does a visit cost?", IntentFAQ},
		{"where can I park", IntentFAQ},
		{"asdf qwerty", IntentUnclear},
		{"", IntentUnclear},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyIntent(tc.text), "text: %q", tc.text)
		})
	}
}

type scriptedLLM struct {
	reply string
	err   error
}

func (s scriptedLLM) Complete(context.Context, LLMRequest) (LLMResponse, error) {
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.reply}, nil
}

func TestLLMIntentClassifier(t *testing.T) {
	ctx := context.Background()

	t.Run("uses llm label", func(t *testing.T) {
		c := NewLLMIntentClassifier(scriptedLLM{reply: `{"intent": "reschedule"}`})
		assert.Equal(t, IntentReschedule, c.Classify(ctx, "hmm about my visit"))
	})

	t.Run("tolerates surrounding prose", func(t *testing.T) {
		c := NewLLMIntentClassifier(scriptedLLM{reply: "Sure! {\"intent\": \"faq\"} hope that helps"})
		assert.Equal(t, IntentFAQ, c.Classify(ctx, "parking?"))
	})

	t.Run("falls back on error", func(t *testing.T) {
		c := NewLLMIntentClassifier(scriptedLLM{err: errors.New("rate limited")})
		assert.Equal(t, IntentBook, c.Classify(ctx, "I'd like to book an appointment"))
	})

	t.Run("falls back on unknown label", func(t *testing.T) {
		c := NewLLMIntentClassifier(scriptedLLM{reply: `{"intent": "sing"}`})
		assert.Equal(t, IntentCancel, c.Classify(ctx, "cancel my appointment"))
	})

	t.Run("falls back on malformed json", func(t *testing.T) {
		c := NewLLMIntentClassifier(scriptedLLM{reply: "not json"})
		assert.Equal(t, IntentGreeting, c.Classify(ctx, "hello"))
	})
}
