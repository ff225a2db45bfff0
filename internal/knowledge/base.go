package knowledge

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/letsdeepchat/MedAppAuto/internal/observability/metrics"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// NoAnswer is returned as the answer text when nothing in the knowledge base
// clears the confidence threshold.
const NoAnswer = "I'm sorry, I don't have information about that. Please call the clinic directly and our staff will be happy to help."

// Embedder turns texts into vectors for semantic retrieval. Nil embedders
// are legal; the base then answers from keyword overlap alone.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Answer is the result of a knowledge base query.
type Answer struct {
	Found      bool    `json:"found"`
	Text       string  `json:"text"`
	Topic      string  `json:"topic,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"` // "semantic" or "keyword"
}

// Base holds derived clinic knowledge and answers free-text questions.
type Base struct {
	logger   *logging.Logger
	embedder Embedder
	metrics  *metrics.ConversationMetrics

	semanticThreshold float64
	keywordThreshold  float64

	mu      sync.RWMutex
	entries []indexedEntry
}

type indexedEntry struct {
	entry     Entry
	tokens    map[string]struct{}
	embedding []float32
}

// BaseOption configures the knowledge base.
type BaseOption func(*Base)

// WithEmbedder enables semantic retrieval.
func WithEmbedder(e Embedder) BaseOption {
	return func(b *Base) { b.embedder = e }
}

// WithSemanticThreshold sets the minimum cosine similarity for a semantic hit.
func WithSemanticThreshold(t float64) BaseOption {
	return func(b *Base) {
		if t > 0 {
			b.semanticThreshold = t
		}
	}
}

// WithKeywordThreshold sets the minimum overlap score for a keyword hit.
func WithKeywordThreshold(t float64) BaseOption {
	return func(b *Base) {
		if t > 0 {
			b.keywordThreshold = t
		}
	}
}

// WithMetrics attaches FAQ lookup counters.
func WithMetrics(m *metrics.ConversationMetrics) BaseOption {
	return func(b *Base) { b.metrics = m }
}

// NewBase creates an empty knowledge base.
func NewBase(logger *logging.Logger, opts ...BaseOption) *Base {
	if logger == nil {
		logger = logging.Default()
	}
	b := &Base{
		logger:            logger,
		semanticThreshold: 0.55,
		keywordThreshold:  0.15,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add indexes entries. Embedding failures degrade the affected entries to
// keyword-only retrieval instead of failing the load.
func (b *Base) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var embeddings [][]float32
	if b.embedder != nil {
		texts := make([]string, len(entries))
		for i, e := range entries {
			texts[i] = e.Content
		}
		var err error
		embeddings, err = b.embedder.Embed(ctx, texts)
		if err != nil {
			b.logger.Warn("knowledge embedding failed, falling back to keyword retrieval", "error", err)
			embeddings = nil
		} else if len(embeddings) != len(entries) {
			b.logger.Warn("knowledge embedding count mismatch, falling back to keyword retrieval",
				"want", len(entries), "got", len(embeddings))
			embeddings = nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range entries {
		tokens := make(map[string]struct{})
		for _, t := range tokenize(e.Content) {
			tokens[t] = struct{}{}
		}
		for _, k := range e.Keywords {
			tokens[strings.ToLower(k)] = struct{}{}
		}
		ie := indexedEntry{entry: e, tokens: tokens}
		if embeddings != nil {
			ie.embedding = embeddings[i]
		}
		b.entries = append(b.entries, ie)
	}
	return nil
}

// Len reports the number of indexed entries.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Query answers a free-text question. Semantic retrieval runs first when an
// embedder is configured; any embedding failure falls through to keyword
// overlap so the caller always gets an answer object, never an error.
func (b *Base) Query(ctx context.Context, question string) Answer {
	if ans, ok := b.querySemantic(ctx, question); ok {
		b.observe("semantic_hit")
		return ans
	}
	if ans, ok := b.queryKeyword(question); ok {
		b.observe("keyword_hit")
		return ans
	}
	b.observe("miss")
	return Answer{Found: false, Text: NoAnswer}
}

func (b *Base) querySemantic(ctx context.Context, question string) (Answer, bool) {
	if b.embedder == nil {
		return Answer{}, false
	}
	vecs, err := b.embedder.Embed(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		if err != nil {
			b.logger.Warn("query embedding failed, using keyword retrieval", "error", err)
		}
		return Answer{}, false
	}
	queryVec := vecs[0]

	b.mu.RLock()
	defer b.mu.RUnlock()

	best := Answer{}
	for _, ie := range b.entries {
		if len(ie.embedding) == 0 {
			continue
		}
		score := cosineSimilarity(queryVec, ie.embedding)
		if score > best.Confidence {
			best = Answer{
				Found:      true,
				Text:       ie.entry.Content,
				Topic:      ie.entry.Topic,
				Confidence: score,
				Source:     "semantic",
			}
		}
	}
	if !best.Found || best.Confidence < b.semanticThreshold {
		return Answer{}, false
	}
	return best, true
}

func (b *Base) queryKeyword(question string) (Answer, bool) {
	qTokens := tokenize(question)
	if len(qTokens) == 0 {
		return Answer{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	best := Answer{}
	for _, ie := range b.entries {
		matched := 0
		for _, t := range qTokens {
			if _, ok := ie.tokens[t]; ok {
				matched++
			}
		}
		score := float64(matched) / float64(len(qTokens))
		if score > best.Confidence {
			best = Answer{
				Found:      true,
				Text:       ie.entry.Content,
				Topic:      ie.entry.Topic,
				Confidence: score,
				Source:     "keyword",
			}
		}
	}
	if !best.Found || best.Confidence < b.keywordThreshold {
		return Answer{}, false
	}
	return best, true
}

func (b *Base) observe(result string) {
	if b.metrics != nil {
		b.metrics.ObserveFAQ(result)
	}
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "can": {},
	"do": {}, "does": {}, "for": {}, "have": {}, "how": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "my": {}, "of": {}, "on": {}, "or": {}, "tell": {},
	"the": {}, "to": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "will": {}, "with": {}, "you": {}, "your": {}, "me": {},
	"about": {}, "there": {}, "any": {},
}

// tokenize lowercases, strips punctuation and drops stop words. Single
// characters are dropped too; contractions like "what's" shed a stray "s".
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, skip := stopWords[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
