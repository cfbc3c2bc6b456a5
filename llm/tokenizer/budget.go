package tokenizer

// FitPrefix 返回 texts 中能放进 budget 的最长前缀长度. 每段额外计 perItem 个
// token (编号与出处行). 第一段总是保留, 因此非空输入至少返回 1; budget 非正表示不限.
// tk 计数失败的段落改用字符估算.
func FitPrefix(tk Tokenizer, texts []string, budget, perItem int) (kept, used int) {
	if len(texts) == 0 {
		return 0, 0
	}
	if budget <= 0 {
		return len(texts), 0
	}

	var fallback *EstimatorTokenizer
	for i, text := range texts {
		n, err := tk.CountTokens(text)
		if err != nil {
			if fallback == nil {
				fallback = NewEstimatorTokenizer(tk.Name(), tk.MaxTokens())
			}
			n, _ = fallback.CountTokens(text)
		}
		n += perItem
		if i > 0 && used+n > budget {
			return i, used
		}
		used += n
	}
	return len(texts), used
}
