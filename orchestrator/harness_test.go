package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/llm/retry"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/testutil/fixtures"
	"github.com/BaSui01/askflow/testutil/mocks"
	"github.com/BaSui01/askflow/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// harness 用真实的流水线组件与脚本化 LLM 组装编排器.
type harness struct {
	llm      *mocks.ScriptedProvider
	embedder *mocks.HashEmbedder
	memory   *memory.InMemoryStore
	pending  *hitl.InMemoryPendingStore
	orch     *Orchestrator
}

type harnessOptions struct {
	config     Config
	store      rag.ChunkStore
	mode       rag.RetrievalMode
	locations  []rag.Location
	memConfig  memory.Config
	components func(*Components)
	opts       []Option
}

func withConfig(fn func(*Config)) func(*harnessOptions) {
	return func(o *harnessOptions) { fn(&o.config) }
}

func withStore(store rag.ChunkStore) func(*harnessOptions) {
	return func(o *harnessOptions) { o.store = store }
}

func withManagedStore() func(*harnessOptions) {
	return func(o *harnessOptions) { o.mode = rag.RetrievalModeManaged }
}

func withLocations(locs []rag.Location) func(*harnessOptions) {
	return func(o *harnessOptions) { o.locations = locs }
}

func withComponents(fn func(*Components)) func(*harnessOptions) {
	return func(o *harnessOptions) { o.components = fn }
}

func withOptions(opts ...Option) func(*harnessOptions) {
	return func(o *harnessOptions) { o.opts = append(o.opts, opts...) }
}

func withLockTimeout(d time.Duration) func(*harnessOptions) {
	return func(o *harnessOptions) { o.memConfig.LockTimeout = d }
}

func newHarness(t *testing.T, configure ...func(*harnessOptions)) *harness {
	t.Helper()

	h := &harness{
		llm:      mocks.NewScriptedProvider(),
		embedder: mocks.NewHashEmbedder(64),
	}
	o := harnessOptions{
		config:    DefaultConfig(),
		mode:      rag.RetrievalModeHybrid,
		memConfig: memory.Config{LockTimeout: time.Second},
	}
	for _, fn := range configure {
		fn(&o)
	}
	if o.store == nil {
		o.store = fixtures.NewProgramStore(h.embedder.Vector)
	}
	if o.mode == rag.RetrievalModeManaged {
		o.store = &managedStore{ChunkStore: o.store}
	}

	scriptDefaults(h.llm)

	logger := zap.NewNop()
	client := rag.NewProviderClient(h.llm, rag.ProviderClientConfig{
		Model:   "test-model",
		Timeout: 5 * time.Second,
		Retry:   &retry.RetryPolicy{MaxRetries: 0},
	}, logger)

	retriever, err := rag.NewHybridRetriever(o.store, h.embedder, rag.HybridRetrievalConfig{Mode: o.mode}, logger)
	require.NoError(t, err)

	h.memory = memory.NewInMemoryStore(o.memConfig, logger)
	t.Cleanup(func() { _ = h.memory.Close() })
	h.pending = hitl.NewInMemoryPendingStore(nil)

	c := Components{
		Router:       rag.NewQueryRouter(client, rag.DefaultQueryRouterConfig(), logger),
		Reformulator: rag.NewReformulator(client, rag.DefaultReformulatorConfig(), logger),
		Retriever:    retriever,
		Reranker:     rag.NewLLMReranker(client, rag.DefaultRerankConfig(), logger),
		Generator:    rag.NewGenerator(client, nil, rag.DefaultGeneratorConfig(), logger),
		Validator:    rag.NewValidator(client, rag.DefaultValidatorConfig(), logger),
		Clarifier:    hitl.NewClarificationManager(client, h.pending, hitl.DefaultClarificationConfig(), logger),
		Locations:    rag.NewLocationDirectory(o.locations),
		Chat:         client,
		Memory:       h.memory,
	}
	if o.components != nil {
		o.components(&c)
	}

	h.orch, err = New(c, o.config, logger, o.opts...)
	require.NoError(t, err)
	return h
}

// managedStore 为内存存储加上自带排序的检索接口.
type managedStore struct {
	rag.ChunkStore
}

func (m *managedStore) HybridQuery(ctx context.Context, dense []float64, _ rag.SparseVector, _, limit int, filter *rag.MetadataFilter) ([]rag.ScoredChunk, error) {
	return m.SearchDense(ctx, dense, limit, filter)
}

// scriptDefaults 脚本化一条正常通过的路径.
func scriptDefaults(p *mocks.ScriptedProvider) {
	p.On(mocks.KindRouter, routeByKeyword)
	p.On(mocks.KindJudge, judgeByOverlap)
	p.On(mocks.KindGenerator, func(c mocks.Call) (string, error) {
		return fmt.Sprintf("According to the program documents, %s [1].", strings.TrimSuffix(questionOf(c.User), "?")), nil
	})
	p.OnText(mocks.KindValidator, fixtures.PassingVerdict())
	p.OnText(mocks.KindClarifier, fixtures.ClarifyReply("What would you like help with?",
		"Eligibility requirements", "Income limits for a family size", "Office locations"))
	p.OnText(mocks.KindConversational, "Hi there! Ask me anything about the program.")
	p.On(mocks.KindRewriter, func(c mocks.Call) (string, error) {
		return "child care subsidy program information", nil
	})
}

func routeByKeyword(c mocks.Call) (string, error) {
	msg := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c.User, "Message: ")))
	switch {
	case msg == "help me" || msg == "i have a question":
		return fixtures.RouteReply(rag.RouteClarify, 0.9), nil
	case strings.Contains(msg, "office") || strings.HasPrefix(msg, "where"):
		return fixtures.RouteReply(rag.RouteLocation, 0.95), nil
	case strings.Contains(msg, "weather"):
		return fixtures.RouteReply(rag.RouteOutOfScope, 0.95), nil
	default:
		return fixtures.RouteReply(rag.RouteRAG, 0.9), nil
	}
}

var (
	passageLine  = regexp.MustCompile(`(?m)^\[(\d+)\] (.*)$`)
	stopwords    = map[string]bool{
		"what": true, "the": true, "for": true, "and": true, "are": true, "how": true,
		"does": true, "was": true, "much": true, "about": true, "with": true, "specifically": true,
	}
)

func questionOf(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if q, ok := strings.CutPrefix(line, "Question: "); ok {
			return strings.TrimSpace(q)
		}
	}
	return ""
}

func keywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '%')
	})
	out := words[:0]
	for _, w := range words {
		if len(w) >= 3 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// judgeByOverlap 与问题有共同词项的段落给 8 分, 其余 1 分.
func judgeByOverlap(c mocks.Call) (string, error) {
	kws := keywords(questionOf(c.User))
	var scores []string
	for _, m := range passageLine.FindAllStringSubmatch(c.User, -1) {
		score := 1
		text := strings.ToLower(m[2])
		for _, kw := range kws {
			if strings.Contains(text, kw) {
				score = 8
				break
			}
		}
		scores = append(scores, fmt.Sprintf(`{"index": %s, "score": %d}`, m[1], score))
	}
	return `{"scores": [` + strings.Join(scores, ", ") + `]}`, nil
}

// citing 返回生成提示中包含 needle 的来源编号, 找不到时为 1.
func citing(prompt, needle string) int {
	if n := fixtures.SourceMarker(prompt, needle); n > 0 {
		return n
	}
	return 1
}

func upstreamErr(msg string) error {
	return types.NewError(types.ErrUpstreamError, msg).WithRetryable(false)
}
