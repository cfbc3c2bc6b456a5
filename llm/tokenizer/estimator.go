package tokenizer

import (
	"unicode"
)

// 各类字符平均每个 token 的字符数
const (
	cjkRunesPerToken   = 1.5
	digitsPerToken     = 3.0 // 金额与收入表中的长数字按三位一组切分
	otherRunesPerToken = 4.0
)

// EstimatorTokenizer 在没有 BPE 词表时按字符类别估算 token 数.
// 语料以英文条款和数值表为主, 数字单独计价, 避免低估金额密集的块.
type EstimatorTokenizer struct {
	name      string
	maxTokens int
}

// NewEstimatorTokenizer 创建估算器; maxTokens 非正时取 4096.
func NewEstimatorTokenizer(name string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &EstimatorTokenizer{name: name, maxTokens: maxTokens}
}

// CountTokens 估算 token 数; 非空文本至少计 1.
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	var cjk, digits, other int
	for _, r := range text {
		switch {
		case isCJK(r):
			cjk++
		case unicode.IsDigit(r):
			digits++
		default:
			other++
		}
	}
	estimated := int(float64(cjk)/cjkRunesPerToken +
		float64(digits)/digitsPerToken +
		float64(other)/otherRunesPerToken)
	return max(estimated, 1), nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator:" + e.name }

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		(r >= 0x3000 && r <= 0x303F) || // 标点
		(r >= 0xFF00 && r <= 0xFFEF) // 全角
}
