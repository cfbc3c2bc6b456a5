package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/askflow/llm/tokenizer"
	"go.uber.org/zap"
)

// DefaultNoInfoAnswer 无可用来源时的固定回答.
const DefaultNoInfoAnswer = "I couldn't find information about that in the available documents. " +
	"Try rephrasing your question or naming a specific program, year or document."

// GeneratorConfig 生成配置
type GeneratorConfig struct {
	HistoryTurns     int    `json:"history_turns" yaml:"history_turns"`           // 作为上下文的最近轮数
	MaxContextTokens int    `json:"max_context_tokens" yaml:"max_context_tokens"` // 来源部分的 token 预算
	MaxAnswerChars   int    `json:"max_answer_chars" yaml:"max_answer_chars"`     // 历史回答截断长度
	NoInfoAnswer     string `json:"no_info_answer" yaml:"no_info_answer"`
}

// DefaultGeneratorConfig 返回默认配置
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		HistoryTurns:     3,
		MaxContextTokens: 6000,
		MaxAnswerChars:   1500,
		NoInfoAnswer:     DefaultNoInfoAnswer,
	}
}

// GenerateRequest 生成请求
type GenerateRequest struct {
	Query   string
	Chunks  []Chunk
	History []ConversationTurn

	// 重新生成时填写: 上一版草稿与校验发现的问题
	PreviousDraft string
	Issues        []string
}

// Citation 回答中的一个引用标记
type Citation struct {
	Marker  int    `json:"marker"`
	ChunkID string `json:"chunk_id"`
	Source  Source `json:"source"`
}

// Draft 生成的草稿
type Draft struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Sources   []Source   `json:"sources"` // 仅包含被引用的块, 按首次出现去重
	Chunks    []Chunk    `json:"-"`       // 实际提供给模型的块
	NoInfo    bool       `json:"no_info"`
}

// Generator 根据重排后的块生成带引用的回答.
type Generator struct {
	client    LLMClient
	tokenizer tokenizer.Tokenizer
	config    GeneratorConfig
	logger    *zap.Logger
}

// NewGenerator 创建生成器; tk 为空时使用字符估算.
func NewGenerator(client LLMClient, tk tokenizer.Tokenizer, config GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tk == nil {
		tk = tokenizer.NewEstimatorTokenizer("generator", config.MaxContextTokens)
	}
	if config.NoInfoAnswer == "" {
		config.NoInfoAnswer = DefaultNoInfoAnswer
	}
	return &Generator{
		client:    client,
		tokenizer: tk,
		config:    config,
		logger:    logger.With(zap.String("component", "generator")),
	}
}

// NoInfo 返回固定的无信息草稿.
func (g *Generator) NoInfo() *Draft {
	return &Draft{Answer: g.config.NoInfoAnswer, Citations: []Citation{}, Sources: []Source{}, NoInfo: true}
}

// Generate 生成草稿. 没有块或回答中没有任何有效引用时返回固定的无信息回答.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*Draft, error) {
	if len(req.Chunks) == 0 {
		return g.NoInfo(), nil
	}

	chunks := g.fitBudget(req.Chunks)
	user := g.buildPrompt(req, chunks)

	text, err := g.client.Generate(ctx, GeneratorSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	citations := ExtractCitations(text, chunks)
	if len(citations) == 0 {
		g.logger.Info("generated answer cites no sources, returning no-information answer",
			zap.Int("chunks", len(chunks)))
		draft := g.NoInfo()
		draft.Chunks = chunks
		return draft, nil
	}

	return &Draft{
		Answer:    text,
		Citations: citations,
		Sources:   CitedSources(citations),
		Chunks:    chunks,
	}, nil
}

// passageOverheadTokens 每个来源块的编号与出处行的 token 开销
const passageOverheadTokens = 12

// fitBudget 按顺序保留不超过 token 预算的块, 至少保留一个.
func (g *Generator) fitBudget(chunks []Chunk) []Chunk {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	kept, used := tokenizer.FitPrefix(g.tokenizer, texts, g.config.MaxContextTokens, passageOverheadTokens)
	if kept < len(chunks) {
		g.logger.Debug("context budget reached",
			zap.Int("kept", kept),
			zap.Int("dropped", len(chunks)-kept),
			zap.Int("tokens", used))
	}
	return chunks[:kept]
}

func (g *Generator) buildPrompt(req GenerateRequest, chunks []Chunk) string {
	var b strings.Builder
	history := req.History
	if g.config.HistoryTurns >= 0 && len(history) > g.config.HistoryTurns {
		history = history[len(history)-g.config.HistoryTurns:]
	}
	if len(history) > 0 {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", FormatHistory(history, g.config.MaxAnswerChars))
	}
	fmt.Fprintf(&b, "Sources:\n%s\n\n", FormatSources(chunks, 0))
	fmt.Fprintf(&b, "Question: %s\n", req.Query)

	if len(req.Issues) > 0 {
		b.WriteString("\nYour previous draft was rejected for these problems:\n")
		for _, issue := range req.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
		if req.PreviousDraft != "" {
			fmt.Fprintf(&b, "\nPrevious draft:\n%s\n", req.PreviousDraft)
		}
		b.WriteString("\nWrite a corrected answer that fixes every problem and cites only the sources above.\n")
	}
	b.WriteString("\nAnswer:")
	return b.String()
}

var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// ExtractCitations 解析 [n] / [n, m] 标记, 只保留指向所提供块的引用, 按首次出现去重.
func ExtractCitations(answer string, chunks []Chunk) []Citation {
	seen := make(map[int]bool)
	out := make([]Citation, 0)
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(chunks) || seen[n] {
				continue
			}
			seen[n] = true
			c := chunks[n-1]
			out = append(out, Citation{Marker: n, ChunkID: c.ID, Source: SourceOf(c)})
		}
	}
	return out
}

// CitedSources 返回被引用的来源, 相同 (document, page, url) 只出现一次.
func CitedSources(citations []Citation) []Source {
	seen := make(map[Source]bool, len(citations))
	out := make([]Source, 0, len(citations))
	for _, c := range citations {
		if seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		out = append(out, c.Source)
	}
	return out
}
