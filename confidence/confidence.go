// CLAUDE:SUMMARY Heuristic [0,1] confidence for recognised text when the engine reports none (char mix, word length, whitespace, repetition).
// Package confidence estimates how plausible a piece of recognised text is.
//
// Engines that report no native certainty get their output scored here.
// The score combines four sub-scores with fixed weights; Score is total
// and never fails.
package confidence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sub-score weights.
const (
	WeightChars      = 0.40
	WeightWords      = 0.30
	WeightWhitespace = 0.15
	WeightRepetition = 0.15
)

// minRunes is the shortest text judged on its content.
const minRunes = 5

// Signal holds the four sub-scores, each in [0,1].
type Signal struct {
	CharFrequency float64 `json:"char_frequency"`
	WordLength    float64 `json:"word_length"`
	Whitespace    float64 `json:"whitespace"`
	Repetition    float64 `json:"repetition"`
}

// Combined applies the weights and clamps to [0,1].
func (s Signal) Combined() float64 {
	v := WeightChars*s.CharFrequency +
		WeightWords*s.WordLength +
		WeightWhitespace*s.Whitespace +
		WeightRepetition*s.Repetition
	return clamp01(v)
}

// Score returns 0 for empty text, 0.5 for text shorter than five
// characters, and the combined signal otherwise.
func Score(text string) float64 {
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return 0
	case n < minRunes:
		return 0.5
	}
	return Analyze(text).Combined()
}

// Analyze computes the sub-scores regardless of length.
func Analyze(text string) Signal {
	return Signal{
		CharFrequency: charFrequency(text),
		WordLength:    wordLength(text),
		Whitespace:    whitespace(text),
		Repetition:    repetition(text),
	}
}

func isASCIIPunct(r rune) bool {
	return r < utf8.RuneSelf && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r)
}

// charFrequency penalises symbols that are neither alphanumeric, whitespace
// nor ASCII punctuation, and rewards a healthy share of letters.
func charFrequency(text string) float64 {
	var total, special, letters int
	for _, r := range text {
		total++
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsNumber(r), unicode.IsSpace(r), isASCIIPunct(r):
		default:
			special++
		}
	}
	if total == 0 {
		return 0
	}
	specialPenalty := 1 - min(1, float64(special)/float64(total)*10)
	letterScore := min(1, float64(letters)/float64(total)*1.5)
	return specialPenalty*0.6 + letterScore*0.4
}

func wordLength(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0.5
	}
	var runes, single int
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		runes += n
		if n == 1 {
			single++
		}
	}
	avg := float64(runes) / float64(len(words))
	var avgScore float64
	switch {
	case avg < 2:
		avgScore = 0.3
	case avg < 4:
		avgScore = 0.7
	case avg < 9:
		avgScore = 1.0
	case avg < 13:
		avgScore = 0.8
	default:
		avgScore = 0.4
	}
	singlePenalty := 1 - min(0.5, float64(single)/float64(len(words))*1.5)
	return avgScore * singlePenalty
}

func whitespace(text string) float64 {
	var total, ws int
	for _, r := range text {
		total++
		if unicode.IsSpace(r) {
			ws++
		}
	}
	if total == 0 {
		return 0.5
	}
	// Integer bins like wordLength: 5.9% is still in 0-5.
	pct := float64(ws) / float64(total) * 100
	switch {
	case pct < 6:
		return 0.5
	case pct < 11:
		return 0.8
	case pct < 26:
		return 1.0
	case pct < 41:
		return 0.7
	default:
		return 0.3
	}
}

// repetition scores the longest run of one repeated non-space character.
// Runs are broken by any different character, including whitespace.
func repetition(text string) float64 {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range text {
		if unicode.IsSpace(r) {
			run, prev = 0, -1
			continue
		}
		if r == prev {
			run++
		} else {
			run, prev = 1, r
		}
		longest = max(longest, run)
	}
	switch {
	case longest <= 3:
		return 1.0
	case longest <= 5:
		return 0.8
	case longest <= 10:
		return 0.5
	default:
		return 0.2
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Mean averages per-image scores. An empty slice yields 0.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return clamp01(sum / float64(len(scores)))
}
