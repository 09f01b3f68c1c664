// Package knowledge provides a small, deterministic, concurrency-safe
// in-memory medical knowledge base used to ground assistant replies.
//
//   - No logging in the library (callers decide how/what to log)
//   - Immutable after construction (safe for concurrent use)
//   - Accent- and case-insensitive matching
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring is keyword based: for every query term an entry earns 3.0 when its
// topic contains the term, 2.0 for its description, 1.5 per matching symptom
// and 1.0 per matching recommendation.
package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Scoring weights per matching term.
const (
	WeightTopic          = 3.0
	WeightDescription    = 2.0
	WeightSymptom        = 1.5
	WeightRecommendation = 1.0
)

// minTermRunes drops articles and prepositions ("de", "el") from queries.
const minTermRunes = 3

// Entry is one condition of the knowledge base.
type Entry struct {
	Topic           string   `json:"topic"`
	Description     string   `json:"description"`
	Symptoms        []string `json:"symptoms"`
	Recommendations []string `json:"recommendations"`
	RedFlags        []string `json:"redFlags"`
}

// Result is a ranked entry with its relevance score.
type Result struct {
	Entry
	Score float64
}

// Index is the minimal interface implemented by knowledge indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

type doc struct {
	entry    Entry
	topic    string
	desc     string
	symptoms []string
	recs     []string
}

type index struct {
	docs []doc
}

// LoadFile builds an Index from the JSON document at path. On error the
// returned Index is empty but usable, so callers may log and continue.
func LoadFile(path string) (Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return &index{}, err
	}
	return NewFromReader(bytes.NewReader(b))
}

// NewFromReader parses {"knowledgeBase":[...]} from r. Entries without a topic
// are skipped.
func NewFromReader(r io.Reader) (Index, error) {
	var doc struct {
		KnowledgeBase *[]Entry `json:"knowledgeBase"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return &index{}, fmt.Errorf("knowledge: decode: %w", err)
	}
	if doc.KnowledgeBase == nil {
		return &index{}, fmt.Errorf("knowledge: %q array not found", "knowledgeBase")
	}
	return NewFromEntries(*doc.KnowledgeBase), nil
}

// NewFromEntries builds an Index directly from entries.
func NewFromEntries(entries []Entry) Index {
	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Topic) == "" {
			continue
		}
		docs = append(docs, doc{
			entry:    e,
			topic:    Fold(e.Topic),
			desc:     Fold(e.Description),
			symptoms: foldAll(e.Symptoms),
			recs:     foldAll(e.Recommendations),
		})
	}
	return &index{docs: docs}
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k entries with a positive score, best first.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 {
		return nil
	}
	terms := Terms(q)
	if len(terms) == 0 {
		return nil
	}
	if k <= 0 {
		k = 3
	}

	buf := make([]Result, 0, len(i.docs))
	for _, d := range i.docs {
		if s := d.score(terms); s > 0 {
			buf = append(buf, Result{Entry: d.entry, Score: s})
		}
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		return buf[a].Topic < buf[b].Topic
	})
	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}

func (d doc) score(terms []string) float64 {
	var s float64
	for _, t := range terms {
		if strings.Contains(d.topic, t) {
			s += WeightTopic
		}
		if strings.Contains(d.desc, t) {
			s += WeightDescription
		}
		for _, sym := range d.symptoms {
			if strings.Contains(sym, t) {
				s += WeightSymptom
			}
		}
		for _, r := range d.recs {
			if strings.Contains(r, t) {
				s += WeightRecommendation
			}
		}
	}
	return s
}

// Terms splits a folded query into de-duplicated search terms.
func Terms(q string) []string {
	fields := strings.FieldsFunc(Fold(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTermRunes {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Fold lowercases s with Spanish rules and strips diacritics, so "Fiébre"
// and "fiebre" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Lower(language.Spanish).String(out)
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, Fold(s))
		}
	}
	return out
}
