package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultCaveat 校验重试耗尽后附加在草稿后的不确定性说明.
const DefaultCaveat = "Note: I could not fully verify this answer against the source documents. " +
	"Please confirm the details with the program office before relying on them."

// ValidatorConfig 校验配置
type ValidatorConfig struct {
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	MaxChunkChars int     `json:"max_chunk_chars" yaml:"max_chunk_chars"`
	Caveat        string  `json:"caveat" yaml:"caveat"`
}

// DefaultValidatorConfig 返回默认配置
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinConfidence: 0.7,
		MaxChunkChars: 1500,
		Caveat:        DefaultCaveat,
	}
}

// Verdict 校验结论
type Verdict struct {
	IsGrounded        bool     `json:"is_grounded"`
	AddressesQuestion bool     `json:"addresses_question"`
	Confidence        float64  `json:"confidence"`
	Issues            []string `json:"issues,omitempty"`
	Passed            bool     `json:"passed"`
	Skipped           bool     `json:"skipped,omitempty"` // 校验器不可用, 草稿直接通过
}

// Validator 检查草稿的可溯源性与切题性.
type Validator struct {
	client LLMClient
	config ValidatorConfig
	logger *zap.Logger
}

// NewValidator 创建校验器
func NewValidator(client LLMClient, config ValidatorConfig, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Caveat == "" {
		config.Caveat = DefaultCaveat
	}
	return &Validator{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "validator")),
	}
}

// Validate 校验草稿. 校验调用失败时跳过校验并视为通过.
func (v *Validator) Validate(ctx context.Context, query string, draft *Draft) Verdict {
	user := fmt.Sprintf("Sources:\n%s\n\nQuestion: %s\n\nDraft answer:\n%s",
		FormatSources(draft.Chunks, v.config.MaxChunkChars), query, draft.Answer)

	var out struct {
		IsGrounded        bool     `json:"is_grounded"`
		AddressesQuestion bool     `json:"addresses_question"`
		Confidence        float64  `json:"confidence"`
		Issues            []string `json:"issues"`
	}
	if err := v.client.Classify(ctx, ValidatorSystemPrompt, user, &out); err != nil {
		v.logger.Warn("validator unavailable, skipping validation", zap.Error(err))
		return Verdict{Passed: true, Skipped: true}
	}

	verdict := Verdict{
		IsGrounded:        out.IsGrounded,
		AddressesQuestion: out.AddressesQuestion,
		Confidence:        clamp01(out.Confidence),
		Issues:            out.Issues,
	}
	verdict.Passed = verdict.IsGrounded && verdict.AddressesQuestion && verdict.Confidence >= v.config.MinConfidence

	if !verdict.Passed && len(verdict.Issues) == 0 {
		if !verdict.IsGrounded {
			verdict.Issues = append(verdict.Issues, "the answer makes claims that are not supported by the sources")
		}
		if !verdict.AddressesQuestion {
			verdict.Issues = append(verdict.Issues, "the answer does not address the question that was asked")
		}
		if verdict.Confidence < v.config.MinConfidence {
			verdict.Issues = append(verdict.Issues, "the answer is not clearly supported; state only what the sources say")
		}
	}

	v.logger.Debug("validation completed",
		zap.Bool("grounded", verdict.IsGrounded),
		zap.Bool("addresses_question", verdict.AddressesQuestion),
		zap.Float64("confidence", verdict.Confidence),
		zap.Bool("passed", verdict.Passed))
	return verdict
}

// WithCaveat 在回答末尾附加不确定性说明.
func (v *Validator) WithCaveat(answer string) string {
	return strings.TrimRight(answer, "\n ") + "\n\n" + v.config.Caveat
}
