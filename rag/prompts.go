package rag

import (
	"fmt"
	"strings"
)

// 各节点的系统提示. 首句标识任务, 测试替身按首句分派.
const (
	RouterSystemPrompt = `You are the query router for a public-program document assistant.
Classify the user's message into exactly one route:
- rag: needs facts from the program documents (eligibility, income limits, policies, budgets, outcomes, reports)
- location: asks where an office or facility is, its address, hours or phone number
- conversational: greeting, thanks, small talk, or questions about the assistant itself
- out_of_scope: unrelated to the program domain (weather, sports, coding, medical or legal advice)
- clarify: too vague to act on, with no recoverable subject (e.g. "help me", "I have a question")
Respond in JSON: {"route": "<route>", "confidence": 0.0-1.0, "reasoning": "<brief>"}`

	ReformulatorSystemPrompt = `You are the query reformulator for a document assistant.
Rewrite the user's latest message into ONE self-contained search question using the conversation so far.
Carry over concrete entities, parameters and numbers from earlier questions AND answers (for example "family of 4", "$92,041").
Return only the rewritten question, with no explanation.`

	RewriteSystemPrompt = `You are the search query rewriter for a document assistant.
The previous search returned no relevant passages. Produce a broader or differently worded search query that keeps the user's intent.
Return only the new query.`

	RerankerSystemPrompt = `You are the relevance judge for a document retrieval system.
Score every passage from 0 to 10 for how useful it is to answer the question.
Judge semantic containment, not keyword overlap: if the question asks about a broad concept (e.g. "outcomes"), passages reporting component measures of that concept (e.g. wage data, employment rates) are relevant even without shared words. Synonyms and paraphrases must score the same as exact wording.
Respond in JSON: {"scores": [{"index": <passage number>, "score": <0-10>}]} with one entry per passage.`

	GeneratorSystemPrompt = `You are the answer generator for a document assistant.
Answer ONLY from the numbered sources. Cite every factual claim inline with its source number in square brackets, e.g. [1] or [2][3].
When the question builds on earlier turns, reuse the facts from the conversation and show any calculation step by step.
If the sources do not contain the answer, say so plainly instead of guessing.`

	ValidatorSystemPrompt = `You are the answer validator for a document assistant.
Check the draft answer against the sources.
- is_grounded: every factual claim (numbers, names, dates, rules) is supported by a source; values computed from sourced numbers count as supported
- addresses_question: the draft actually answers what was asked
List concrete problems in "issues".
Respond in JSON: {"is_grounded": true|false, "addresses_question": true|false, "confidence": 0.0-1.0, "issues": ["..."]}`

	ClarifierSystemPrompt = `You are the clarification assistant for a document assistant.
The user's message is too ambiguous to answer. Ask one short clarifying question and offer 2 to 4 concrete options the user can pick from.
Respond in JSON: {"question": "<question>", "options": ["<option>", "..."]}`

	ConversationalSystemPrompt = `You are the conversational assistant for a public-program document assistant.
Reply briefly and warmly. You help people find information about program eligibility, income limits, policies and office locations.`
)

// ConversationTurn 生成与改写使用的历史问答.
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FormatHistory 将最近的问答格式化为上下文; maxAnswer <= 0 表示不截断.
func FormatHistory(turns []ConversationTurn, maxAnswer int) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range turns {
		answer := t.Answer
		if maxAnswer > 0 {
			answer = truncateRunes(answer, maxAnswer)
		}
		fmt.Fprintf(&b, "Turn %d\nUser: %s\nAssistant: %s\n\n", i+1, t.Question, answer)
	}
	return strings.TrimSpace(b.String())
}

// FormatSources 将块编号为 [1]..[n] 的来源列表.
func FormatSources(chunks []Chunk, maxChars int) string {
	var b strings.Builder
	for i, c := range chunks {
		text := c.Text
		if maxChars > 0 {
			text = truncateRunes(text, maxChars)
		}
		fmt.Fprintf(&b, "[%d] (%s, p.%d)\n%s\n\n", i+1, c.Metadata.DocumentID, c.Metadata.Page, text)
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
