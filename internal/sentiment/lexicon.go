package sentiment

import (
	"context"
	"math"
	"strings"
)

// LexiconScorer scores short text by averaging word polarities from a
// small embedded finance/crypto lexicon. Negation within a three-token
// lookbehind flips the sign. Output is squashed into [-1, 1].
type LexiconScorer struct {
	polarity map[string]float64
	negators map[string]bool
}

func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{
		polarity: defaultLexicon,
		negators: map[string]bool{
			"not": true, "no": true, "never": true, "nor": true,
			"isnt": true, "wasnt": true, "dont": true, "cant": true,
			"wont": true, "didnt": true,
		},
	}
}

func (s *LexiconScorer) Name() string { return "lexicon" }

func (s *LexiconScorer) Score(_ context.Context, text string) (float64, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, nil
	}
	var sum float64
	matched := 0
	for i, tok := range tokens {
		p, ok := s.polarity[tok]
		if !ok {
			continue
		}
		if s.negated(tokens, i) {
			p = -p
		}
		sum += p
		matched++
	}
	if matched == 0 {
		return 0, nil
	}
	// squash raw sum so a pile of weak words cannot exceed one strong one
	return math.Tanh(sum / math.Sqrt(float64(matched))), nil
}

func (s *LexiconScorer) negated(tokens []string, i int) bool {
	lo := i - 3
	if lo < 0 {
		lo = 0
	}
	for j := lo; j < i; j++ {
		if s.negators[tokens[j]] {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:()[]\"'#@")
		f = strings.ReplaceAll(f, "'", "")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

var defaultLexicon = map[string]float64{
	// bullish
	"bull": 0.7, "bullish": 0.8, "moon": 0.8, "mooning": 0.8,
	"pump": 0.5, "pumping": 0.5, "rally": 0.6, "surge": 0.6,
	"breakout": 0.6, "gain": 0.5, "gains": 0.5, "profit": 0.5,
	"buy": 0.4, "buying": 0.4, "long": 0.3, "hodl": 0.4,
	"up": 0.3, "high": 0.3, "ath": 0.7, "adoption": 0.5,
	"strong": 0.4, "growth": 0.5, "winning": 0.6, "green": 0.4,
	"optimistic": 0.6, "support": 0.3, "accumulate": 0.4,
	// bearish
	"bear": -0.7, "bearish": -0.8, "crash": -0.9, "crashing": -0.9,
	"dump": -0.6, "dumping": -0.6, "selloff": -0.7, "plunge": -0.7,
	"loss": -0.5, "losses": -0.5, "sell": -0.4, "selling": -0.4,
	"short": -0.3, "down": -0.3, "low": -0.3, "fear": -0.6,
	"panic": -0.7, "scam": -0.8, "fraud": -0.8, "hack": -0.7,
	"hacked": -0.8, "weak": -0.4, "red": -0.4, "liquidation": -0.6,
	"liquidated": -0.7, "bubble": -0.5, "ban": -0.6, "banned": -0.6,
	"fud": -0.5, "rekt": -0.7, "capitulation": -0.7, "resistance": -0.2,
}
