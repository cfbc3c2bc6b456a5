package orchestrator

import (
	"fmt"

	"github.com/BaSui01/askflow/workflow"
)

const (
	// OutOfScopeAnswer 领域外问题的固定拒答.
	OutOfScopeAnswer = "I can only help with questions about the program documents, eligibility, income limits and office locations. " +
		"That question is outside what I can answer."

	// GreetingAnswer 对话回复不可用时的固定问候.
	GreetingAnswer = "Hello! I can answer questions about program eligibility, income limits, policies and office locations. What would you like to know?"

	// UnavailableAnswer 生成失败且没有可用草稿时的回答.
	UnavailableAnswer = "I'm sorry, I couldn't generate an answer right now. Please try again in a moment."
)

// Config 编排器配置
type Config struct {
	// 改写循环上限: 检索结果全部不相关时最多改写的次数
	MaxRewrite int `json:"max_rewrite" yaml:"max_rewrite"`
	// 重新生成循环上限
	MaxValidation int `json:"max_validation" yaml:"max_validation"`
	// 校验重试耗尽后请求澄清, 否则返回带说明的最佳草稿
	ClarifyOnValidationExhausted bool `json:"clarify_on_validation_exhausted" yaml:"clarify_on_validation_exhausted"`
	// 问题最大长度 (字符)
	MaxQuestionLength int `json:"max_question_length" yaml:"max_question_length"`
	// 单轮节点调用上限
	MaxSteps int `json:"max_steps" yaml:"max_steps"`
	// 固定回答文本, 为空时使用默认值
	OutOfScopeAnswer string `json:"out_of_scope_answer" yaml:"out_of_scope_answer"`
	GreetingAnswer   string `json:"greeting_answer" yaml:"greeting_answer"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxRewrite:        2,
		MaxValidation:     2,
		MaxQuestionLength: 2000,
		MaxSteps:          workflow.DefaultMaxSteps,
		OutOfScopeAnswer:  OutOfScopeAnswer,
		GreetingAnswer:    GreetingAnswer,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.MaxRewrite < 0 {
		return fmt.Errorf("max_rewrite must be >= 0, got %d", c.MaxRewrite)
	}
	if c.MaxValidation < 0 {
		return fmt.Errorf("max_validation must be >= 0, got %d", c.MaxValidation)
	}
	if c.MaxQuestionLength <= 0 {
		return fmt.Errorf("max_question_length must be > 0, got %d", c.MaxQuestionLength)
	}
	// 每次改写经过 REWRITE, RETRIEVE, RERANK; 每次重新生成经过 REGENERATE, VALIDATE
	if need := minSteps(c); c.MaxSteps < need {
		return fmt.Errorf("max_steps %d cannot cover the configured retry bounds (need %d)", c.MaxSteps, need)
	}
	return nil
}

func minSteps(c Config) int {
	return 3*(c.MaxRewrite+1) + 2*(c.MaxValidation+1) + 6
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxQuestionLength <= 0 {
		c.MaxQuestionLength = d.MaxQuestionLength
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = max(d.MaxSteps, minSteps(c))
	}
	if c.OutOfScopeAnswer == "" {
		c.OutOfScopeAnswer = d.OutOfScopeAnswer
	}
	if c.GreetingAnswer == "" {
		c.GreetingAnswer = d.GreetingAnswer
	}
	return c
}
