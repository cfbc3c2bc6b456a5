package rag

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

var defaultStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "this": {}, "to": {}, "was": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// TermEncoder 将文本编码为稀疏词项向量, 权重为 1 + log(tf).
type TermEncoder struct {
	stopWords map[string]struct{}
}

// NewTermEncoder 创建使用默认停用词表的编码器.
func NewTermEncoder() *TermEncoder {
	return &TermEncoder{stopWords: defaultStopWords}
}

// Tokenize 小写化并按非字母数字切分, 去除停用词.
func (e *TermEncoder) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := e.stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Encode 生成稀疏向量.
func (e *TermEncoder) Encode(text string) SparseVector {
	tf := make(map[string]int)
	for _, term := range e.Tokenize(text) {
		tf[term]++
	}
	vec := make(SparseVector, len(tf))
	for term, n := range tf {
		vec[term] = 1 + math.Log(float64(n))
	}
	return vec
}

// termIndex 将词项映射为整数索引 (FNV-1a), 供需要数值索引的后端使用.
func termIndex(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}
