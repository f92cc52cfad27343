// Package nlp implements the intent classifier and parameter extractors
// that turn a raw utterance into a models.IntentResult.
package nlp

import (
	"sort"
	"strings"

	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// Engine classifies utterances against the fixed intent table and applies
// the matching parameter extractor to the winning intent.
type Engine struct {
	intents    []IntentDef
	extractors map[string]Extractor
}

// New builds an Engine over the built-in intent table and extractor set.
func New() *Engine {
	return &Engine{
		intents:    intentTable,
		extractors: extractorTable(),
	}
}

// Classify scores text against every intent, applies context boosts when
// session is non-nil, and extracts parameters for the winner. Deterministic
// for a given (text, session) pair.
func (e *Engine) Classify(text string, session *models.SessionContext) models.IntentResult {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return models.IntentResult{Intent: models.UnknownIntent, Text: text, Parameters: map[string]string{}}
	}

	type scored struct {
		name        string
		score       float64
		contextUsed bool
	}

	results := make([]scored, 0, len(e.intents))
	for _, def := range e.intents {
		score, contextUsed := e.score(def, tokens, session)
		if score > 0 {
			results = append(results, scored{name: def.Name, score: score, contextUsed: contextUsed})
		}
	}

	if len(results) == 0 {
		return models.IntentResult{Intent: models.UnknownIntent, Text: text, Parameters: map[string]string{}}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	winner := results[0]
	confidence := winner.score / float64(len(tokens))
	if confidence > 1.0 {
		confidence = 1.0
	}

	alternatives := make([]models.IntentAlternative, 0, 3)
	for _, r := range results[1:] {
		if len(alternatives) == 3 {
			break
		}
		alternatives = append(alternatives, models.IntentAlternative{Intent: r.name, Score: r.score})
	}

	params := e.extract(winner.name, tokens, text)

	return models.IntentResult{
		Intent:       winner.name,
		Confidence:   confidence,
		Parameters:   params,
		Text:         text,
		ContextUsed:  winner.contextUsed,
		Alternatives: alternatives,
	}
}

// score implements the spec's keyword-hit, positional-bonus, weight,
// requires-context, and context-boost scoring steps for one intent.
func (e *Engine) score(def IntentDef, tokens []string, session *models.SessionContext) (float64, bool) {
	keywords := make(map[string]bool, len(def.Keywords))
	for _, k := range def.Keywords {
		keywords[k] = true
	}

	var score float64
	for _, tok := range tokens {
		if keywords[tok] {
			score++
		}
	}

	for i, tok := range tokens {
		if i >= 5 {
			break
		}
		if keywords[tok] {
			score += float64(5-i) * 0.1
		}
	}

	score *= def.Weight

	if def.RequiresContext && session == nil {
		return 0, false
	}

	contextUsed := false
	if session != nil && def.ContextBoost != nil {
		boost := def.ContextBoost
		for _, li := range boost.LastIntents {
			if li == session.LastIntent {
				score += boost.Boost
				contextUsed = true
				break
			}
		}
		if !contextUsed {
			location := session.Variables["location"]
			for _, loc := range boost.Locations {
				if location != "" && strings.EqualFold(location, loc) {
					score += boost.Boost
					contextUsed = true
					break
				}
			}
		}
	}

	return score, contextUsed
}

func (e *Engine) extract(intent string, tokens []string, text string) map[string]string {
	if fn, ok := e.extractors[intent]; ok {
		if params := fn(tokens, text); params != nil {
			return params
		}
	}
	return map[string]string{}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	return fields
}
