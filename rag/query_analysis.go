package rag

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// QueryHints 查询分析得到的元数据提示, 仅供参考, 不作为硬性过滤条件.
type QueryHints struct {
	FiscalYear   string   `json:"fiscal_year,omitempty"`
	DocumentType string   `json:"document_type,omitempty"`
	TopicTags    []string `json:"topic_tags"`
}

// Filter 从提示构造检索过滤器; 没有可过滤字段时返回 nil.
func (h QueryHints) Filter() *MetadataFilter {
	f := &MetadataFilter{FiscalYear: h.FiscalYear, DocumentType: h.DocumentType}
	if f.IsEmpty() {
		return nil
	}
	return f
}

// IsEmpty 判断是否没有任何提示.
func (h QueryHints) IsEmpty() bool {
	return h.FiscalYear == "" && h.DocumentType == "" && len(h.TopicTags) == 0
}

var (
	// FY2024, FY 24, FY2023-24, fiscal year 2023-2024, fiscal year 2024
	fiscalYearPattern = regexp.MustCompile(`(?i)\b(?:fy|fiscal\s+year)\s*'?(\d{2}|\d{4})(?:\s*[-/–]\s*(\d{2}|\d{4}))?\b`)
)

// QueryAnalyzer 通过模式匹配从查询文本提取元数据提示.
type QueryAnalyzer struct {
	documentTypes map[string][]string // document_type -> keywords
	topicTags     map[string][]string // tag -> keywords
}

// DefaultDocumentTypes 默认文档类型关键词表
func DefaultDocumentTypes() map[string][]string {
	return map[string][]string{
		"annual_report": {"annual report", "year in review"},
		"budget":        {"budget", "appropriation", "expenditure"},
		"audit":         {"audit", "auditor"},
		"policy_manual": {"policy manual", "policy", "handbook", "regulation"},
		"rate_table":    {"rate table", "income table", "smi table", "fee schedule"},
		"fact_sheet":    {"fact sheet", "overview"},
	}
}

// DefaultTopicTags 默认主题标签关键词表
func DefaultTopicTags() map[string][]string {
	return map[string][]string{
		"eligibility": {"eligib", "qualify", "cutoff", "threshold", "smi", "state median income"},
		"income":      {"income", "salary", "earnings"},
		"waitlist":    {"waitlist", "wait list", "waiting list"},
		"subsidy":     {"subsidy", "subsidies", "voucher", "copay", "co-pay", "fee"},
		"providers":   {"provider", "center", "facility", "facilities"},
		"enrollment":  {"enroll", "enrollment", "apply", "application"},
		"outcomes":    {"outcome", "result", "impact", "wage", "employment"},
		"workforce":   {"workforce", "staff", "educator", "wage"},
	}
}

// NewQueryAnalyzer 创建分析器; nil 表使用默认值.
func NewQueryAnalyzer(documentTypes, topicTags map[string][]string) *QueryAnalyzer {
	if documentTypes == nil {
		documentTypes = DefaultDocumentTypes()
	}
	if topicTags == nil {
		topicTags = DefaultTopicTags()
	}
	return &QueryAnalyzer{documentTypes: documentTypes, topicTags: topicTags}
}

// Analyze 提取提示
func (a *QueryAnalyzer) Analyze(query string) QueryHints {
	hints := QueryHints{TopicTags: []string{}}
	lower := strings.ToLower(query)

	hints.FiscalYear = parseFiscalYear(query)
	hints.DocumentType = a.matchDocumentType(lower)

	for tag, keywords := range a.topicTags {
		if containsAny(lower, keywords) {
			hints.TopicTags = append(hints.TopicTags, tag)
		}
	}
	sort.Strings(hints.TopicTags)
	return hints
}

// matchDocumentType 选择最长命中关键词对应的类型, 结果与 map 遍历顺序无关.
func (a *QueryAnalyzer) matchDocumentType(lower string) string {
	best, bestLen := "", 0
	for docType, keywords := range a.documentTypes {
		for _, kw := range keywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			if len(kw) > bestLen || (len(kw) == bestLen && docType < best) {
				best, bestLen = docType, len(kw)
			}
		}
	}
	return best
}

// parseFiscalYear 规范化为 FY 加结束年份的四位数, 例如 "FY2024".
func parseFiscalYear(query string) string {
	m := fiscalYearPattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	year := m[1]
	if m[2] != "" {
		year = m[2]
	}
	n, err := strconv.Atoi(year)
	if err != nil {
		return ""
	}
	if n < 100 {
		n += 2000
	}
	return fmt.Sprintf("FY%d", n)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
