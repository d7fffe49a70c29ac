package onnx

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const defaultMaxSeqLen = 128

// tokenized is a padded batch ready for inference. All slices are flat
// [batchSize * seqLen].
type tokenized struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
	batchSize     int64
	seqLen        int64
}

// tokenizer performs BERT-style WordPiece tokenization.
type tokenizer struct {
	vocab     *vocab
	maxSeqLen int
	lowerCase bool
}

func newTokenizer(v *vocab, maxSeqLen int, lowerCase bool) *tokenizer {
	if maxSeqLen < 3 {
		maxSeqLen = defaultMaxSeqLen
	}
	return &tokenizer{vocab: v, maxSeqLen: maxSeqLen, lowerCase: lowerCase}
}

// encode returns [CLS] tokens... [SEP] ids, truncated to maxSeqLen.
func (t *tokenizer) encode(text string) []int64 {
	tokens := t.wordpiece(t.basicTokenize(text))
	if maxTokens := t.maxSeqLen - 2; len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	ids := make([]int64, 0, len(tokens)+2)
	ids = append(ids, t.vocab.clsID)
	for _, tok := range tokens {
		ids = append(ids, t.vocab.lookup(tok))
	}
	return append(ids, t.vocab.sepID)
}

// tokenizeBatch packs texts into flat slices padded to the longest sequence.
func (t *tokenizer) tokenizeBatch(texts []string) tokenized {
	if len(texts) == 0 {
		return tokenized{}
	}
	seqs := make([][]int64, len(texts))
	maxLen := 0
	for i, text := range texts {
		seqs[i] = t.encode(text)
		maxLen = max(maxLen, len(seqs[i]))
	}

	batchSize := int64(len(texts))
	seqLen := int64(maxLen)
	total := batchSize * seqLen
	out := tokenized{
		inputIDs:      make([]int64, total),
		attentionMask: make([]int64, total),
		tokenTypeIDs:  make([]int64, total),
		batchSize:     batchSize,
		seqLen:        seqLen,
	}
	for i, ids := range seqs {
		off := int64(i) * seqLen
		for j, id := range ids {
			out.inputIDs[off+int64(j)] = id
			out.attentionMask[off+int64(j)] = 1
		}
		for j := len(ids); j < maxLen; j++ {
			out.inputIDs[off+int64(j)] = t.vocab.padID
		}
	}
	return out
}

// basicTokenize cleans text, optionally lowercases and strips accents, then
// splits on whitespace and punctuation.
func (t *tokenizer) basicTokenize(text string) []string {
	text = cleanText(text)
	text = tokenizeChineseChars(text)
	if t.lowerCase {
		text = strings.ToLower(text)
		text = stripAccents(text)
	} else {
		text = norm.NFC.String(text)
	}

	var tokens []string
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, splitOnPunctuation(word)...)
	}
	return tokens
}

func (t *tokenizer) wordpiece(tokens []string) []string {
	var result []string
	for _, token := range tokens {
		if token == "" {
			continue
		}
		result = append(result, t.wordpieceToken(token)...)
	}
	return result
}

// wordpieceToken greedily splits token into the longest vocabulary subwords.
func (t *tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > 200 {
		return []string{"[UNK]"}
	}

	var sub []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if t.vocab.contains(piece) {
				sub = append(sub, piece)
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{"[UNK]"}
		}
		start = end
	}
	return sub
}

func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents removes combining marks after NFD normalization.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tokenizeChineseChars(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if isChineseChar(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func splitOnPunctuation(word string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range word {
		if isPunctuation(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

// ASCII 33-47, 58-64, 91-96, 123-126 count as punctuation, as in BERT.
func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
