package embedding

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxSeqLen is the sequence length used by the sentence models the
// service ships with, [CLS] and [SEP] included.
const DefaultMaxSeqLen = 256

const maxWordRunes = 200

// tokenizer is an uncased BERT WordPiece tokenizer.
type tokenizer struct {
	vocab  *vocab
	maxLen int
}

func newTokenizer(v *vocab, maxLen int) *tokenizer {
	if maxLen < 3 {
		maxLen = DefaultMaxSeqLen
	}
	return &tokenizer{vocab: v, maxLen: maxLen}
}

// encode returns the input ids and attention mask for text, framed by [CLS]
// and [SEP] and truncated to maxLen. There is no padding: a single sequence
// is always run on its own.
func (t *tokenizer) encode(text string) (ids, mask []int64) {
	pieces := t.wordpieces(splitWords(text))
	if limit := t.maxLen - 2; len(pieces) > limit {
		pieces = pieces[:limit]
	}

	ids = make([]int64, 0, len(pieces)+2)
	ids = append(ids, t.vocab.cls)
	for _, p := range pieces {
		ids = append(ids, t.vocab.id(p))
	}
	ids = append(ids, t.vocab.sep)

	mask = make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return ids, mask
}

func (t *tokenizer) wordpieces(words []string) []string {
	var out []string
	for _, w := range words {
		out = append(out, t.splitWord(w)...)
	}
	return out
}

// splitWord applies greedy longest-match-first WordPiece to one word. A word
// that cannot be fully covered by the vocabulary becomes a single [UNK].
func (t *tokenizer) splitWord(word string) []string {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []string{"[UNK]"}
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		var match string
		for ; end > start; end-- {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if t.vocab.has(candidate) {
				match = candidate
				break
			}
		}
		if match == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// splitWords is BERT's basic tokenization: drop control characters, isolate
// CJK ideographs, lowercase, strip accents, then split on whitespace and
// punctuation with punctuation kept as its own token.
func splitWords(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || isControl(r):
		case isSpace(r):
			b.WriteByte(' ')
		case isCJK(r):
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := stripAccents(strings.ToLower(b.String()))

	var words []string
	for _, field := range strings.Fields(cleaned) {
		start := 0
		for i, r := range field {
			if !isPunct(r) {
				continue
			}
			if i > start {
				words = append(words, field[start:i])
			}
			words = append(words, string(r))
			start = i + len(string(r))
		}
		if start < len(field) {
			words = append(words, field[start:])
		}
	}
	return words
}

func stripAccents(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if !unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

// isPunct treats all non-alphanumeric printable ASCII as punctuation, as BERT does.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// cjkRanges are the CJK ideograph blocks BERT splits into single tokens.
var cjkRanges = [][2]rune{
	{0x4E00, 0x9FFF}, {0x3400, 0x4DBF}, {0x20000, 0x2A6DF}, {0x2A700, 0x2B73F},
	{0x2B740, 0x2B81F}, {0x2B820, 0x2CEAF}, {0xF900, 0xFAFF}, {0x2F800, 0x2FA1F},
}

func isCJK(r rune) bool {
	for _, rg := range cjkRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}
