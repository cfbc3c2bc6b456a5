package fixtures

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/testutil"
	"github.com/BaSui01/askflow/testutil/mocks"
)

// =============================================================================
// 📝 脚本化 LLM 响应
// =============================================================================

// RouteReply 路由分类响应
func RouteReply(route rag.Route, confidence float64) string {
	return testutil.MustJSON(map[string]any{"route": route, "confidence": confidence, "reasoning": "scripted"})
}

// VerdictReply 校验响应
func VerdictReply(grounded, addresses bool, confidence float64, issues ...string) string {
	if issues == nil {
		issues = []string{}
	}
	return testutil.MustJSON(map[string]any{
		"is_grounded":        grounded,
		"addresses_question": addresses,
		"confidence":         confidence,
		"issues":             issues,
	})
}

// PassingVerdict 通过校验的响应
func PassingVerdict() string { return VerdictReply(true, true, 0.9) }

// ClarifyReply 澄清问题响应
func ClarifyReply(question string, options ...string) string {
	return testutil.MustJSON(map[string]any{"question": question, "options": options})
}

// =============================================================================
// 🔎 按提示内容作答的 Responder
// =============================================================================

var (
	passagePattern = regexp.MustCompile(`(?m)^\[(\d+)\] (.*)$`)
	sourcePattern  = regexp.MustCompile(`(?m)^\[(\d+)\] \([^)]*\)\n(.*)$`)
)

// JudgeUniform 返回相关性裁判: 提示中的每个段落都得 score 分.
func JudgeUniform(score float64) mocks.Responder {
	return func(call mocks.Call) (string, error) {
		type entry struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		}
		scores := []entry{}
		for _, m := range passagePattern.FindAllStringSubmatch(call.User, -1) {
			idx, _ := strconv.Atoi(m[1])
			scores = append(scores, entry{Index: idx, Score: score})
		}
		return testutil.MustJSON(map[string]any{"scores": scores}), nil
	}
}

// SourceMarker 返回生成提示中正文包含 substr 的第一个来源编号, 找不到时返回 0.
func SourceMarker(prompt, substr string) int {
	for _, m := range sourcePattern.FindAllStringSubmatch(prompt, -1) {
		if strings.Contains(m[2], substr) {
			n, _ := strconv.Atoi(m[1])
			return n
		}
	}
	return 0
}

// AnswerCiting 返回生成器: 找到包含 substr 的来源并在回答后附上其引用标记;
// 没有这样的来源时回答不含引用.
func AnswerCiting(substr, answer string) mocks.Responder {
	return func(call mocks.Call) (string, error) {
		if n := SourceMarker(call.User, substr); n > 0 {
			return fmt.Sprintf("%s [%d]", answer, n), nil
		}
		return answer, nil
	}
}
