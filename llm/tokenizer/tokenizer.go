package tokenizer

import (
	"go.uber.org/zap"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// fallbackTokenizer 优先使用 primary, 出错时改用 estimator.
// tiktoken 首次使用需要加载 BPE 词表, 离线环境下会失败.
type fallbackTokenizer struct {
	primary   Tokenizer
	estimator Tokenizer
	logger    *zap.Logger
}

// ForModel 返回模型对应的分词器: tiktoken 优先, 失败时回退到字符估算.
func ForModel(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	tk := NewTiktokenTokenizer(model)
	return &fallbackTokenizer{
		primary:   tk,
		estimator: NewEstimatorTokenizer(model, tk.MaxTokens()),
		logger:    logger.With(zap.String("component", "tokenizer")),
	}
}

// WithFallback 组合任意分词器与估算器.
func WithFallback(primary Tokenizer, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackTokenizer{
		primary:   primary,
		estimator: NewEstimatorTokenizer(primary.Name(), primary.MaxTokens()),
		logger:    logger,
	}
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	n, err := f.primary.CountTokens(text)
	if err == nil {
		return n, nil
	}
	f.logger.Debug("tokenizer unavailable, using estimator", zap.Error(err))
	return f.estimator.CountTokens(text)
}

func (f *fallbackTokenizer) MaxTokens() int { return f.primary.MaxTokens() }
func (f *fallbackTokenizer) Name() string   { return f.primary.Name() }
