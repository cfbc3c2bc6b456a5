package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/askflow/api"
	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/internal/turnlog"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/testutil"
	"github.com/BaSui01/askflow/testutil/fixtures"
	"github.com/BaSui01/askflow/testutil/mocks"
	"github.com/BaSui01/askflow/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestChat_StatelessQuestion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.On(mocks.KindGenerator, func(c mocks.Call) (string, error) {
		return fmt.Sprintf("CCS is the Child Care Subsidy program, which helps eligible families pay for child care [%d].",
			citing(c.User, "Child Care Subsidy")), nil
	})

	result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "What is CCS?"})
	require.NoError(t, err)

	resp := result.Response
	assert.Equal(t, api.KindAnswer, resp.Kind)
	assert.Equal(t, "rag", resp.Route)
	assert.Contains(t, resp.Answer, "Child Care Subsidy")
	require.NotEmpty(t, resp.Sources)
	assert.False(t, resp.Fallback)
	assert.Empty(t, resp.ThreadID)
	assert.GreaterOrEqual(t, resp.ProcessingTime, 0.0)

	assert.Nil(t, result.Turn, "stateless turns are not stored")
	assert.Zero(t, h.memory.Len())
	assert.Contains(t, result.State.retrievedChunkIDs(), "ccs-overview")
	assert.Equal(t, []string{NodeRoute, NodeRetrieve, NodeRerank, NodeGenerate, NodeValidate, NodeFinalize}, result.Trace.Path)
	assert.True(t, result.State.ValidationPassed())
}

func TestChat_EmptyCorpusReturnsNoInfo(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withStore(rag.NewInMemoryChunkStore(nil)))

	resp, err := h.orch.Chat(context.Background(), api.ChatRequest{Question: "What is CCS?"})
	require.NoError(t, err)

	assert.Equal(t, rag.DefaultNoInfoAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.False(t, resp.Fallback)
	assert.Zero(t, h.llm.CallCount(mocks.KindJudge))
	assert.Zero(t, h.llm.CallCount(mocks.KindGenerator))
	assert.Zero(t, h.llm.CallCount(mocks.KindValidator))

	data, err := resp.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sources":[]`)
}

func TestChat_FollowUpCarriesEarlierAnswer(t *testing.T) {
	t.Parallel()

	for _, followUp := range []string{
		"What is the income cutoff for that family?",
		"What's 85% of that?",
	} {
		t.Run(followUp, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			ctx := context.Background()
			threadID, err := h.orch.NewThread(ctx)
			require.NoError(t, err)

			h.llm.On(mocks.KindGenerator, func(c mocks.Call) (string, error) {
				q := questionOf(c.User)
				if strings.Contains(q, "85%") {
					return fmt.Sprintf("The income cutoff is 85%% of %s, which is %s [%d].",
						fixtures.SMIFamilyOf4, fixtures.IncomeCutoffOf4, citing(c.User, "85%")), nil
				}
				return fmt.Sprintf("The state median income for a family of 4 is %s [%d].",
					fixtures.SMIFamilyOf4, citing(c.User, fixtures.SMIFamilyOf4)), nil
			})
			h.llm.On(mocks.KindReformulator, func(c mocks.Call) (string, error) {
				if !strings.Contains(c.User, fixtures.SMIFamilyOf4) {
					return "", fmt.Errorf("history missing earlier answer")
				}
				return "What is the income cutoff (85% of the state median income of $92,041) for a family of 4?", nil
			})

			first, err := h.orch.Process(ctx, api.ChatRequest{Question: "What is the SMI for a family of 4?", ThreadID: threadID})
			require.NoError(t, err)
			assert.Contains(t, first.Response.Answer, fixtures.SMIFamilyOf4)
			assert.False(t, first.Trace.Visited(NodeReformulate), "first turn has no history")

			second, err := h.orch.Process(ctx, api.ChatRequest{Question: followUp, ThreadID: threadID})
			require.NoError(t, err)
			assert.Contains(t, second.Response.Answer, fixtures.IncomeCutoffOf4)
			assert.True(t, second.Trace.Visited(NodeReformulate))

			require.NotNil(t, second.Turn)
			require.NotNil(t, second.Turn.ReformulatedQuery)
			assert.Contains(t, *second.Turn.ReformulatedQuery, "family of 4")
			assert.Equal(t, followUp, second.Turn.RawQuery)
			assert.Equal(t, 1, second.Turn.TurnIndex)

			gen := h.llm.LastCall(mocks.KindGenerator)
			require.NotNil(t, gen)
			assert.Contains(t, gen.User, fixtures.SMIFamilyOf4, "generator sees the earlier answer")

			thread, err := h.orch.Thread(ctx, threadID)
			require.NoError(t, err)
			require.Len(t, thread.Turns, 2)
			assert.Nil(t, thread.Turns[0].ReformulatedQuery)
			assert.True(t, thread.Turns[1].ValidationPassed)
		})
	}
}

func TestChat_ClarificationRoundTrip(t *testing.T) {
	t.Parallel()
	const reply = "Income limits for a family size"
	answerFor := func(c mocks.Call) (string, error) {
		return fmt.Sprintf("Income limits depend on family size; a family qualifies at or below 85%% of SMI [%d]. Question: %s",
			citing(c.User, "85%"), questionOf(c.User)), nil
	}

	h := newHarness(t)
	h.llm.On(mocks.KindGenerator, answerFor)
	ctx := context.Background()
	threadID := uuid.NewString()

	resp, err := h.orch.Chat(ctx, api.ChatRequest{Question: "help me", ThreadID: threadID})
	require.NoError(t, err)
	require.Equal(t, api.KindClarificationNeeded, resp.Kind)
	assert.Equal(t, "What would you like help with?", resp.Question)
	assert.Len(t, resp.Options, 3)
	assert.Equal(t, threadID, resp.ThreadID)

	thread, err := h.orch.Thread(ctx, threadID)
	require.NoError(t, err)
	assert.Empty(t, thread.Turns, "a suspended turn is not stored")

	resumed, err := h.orch.Process(ctx, api.ChatRequest{ThreadID: threadID, ClarificationReply: reply})
	require.NoError(t, err)
	assert.Equal(t, api.KindAnswer, resumed.Response.Kind)
	assert.Equal(t, NodeRetrieve, resumed.Trace.Path[0], "resume re-enters at retrieval")
	assert.True(t, resumed.State.Resumed)

	require.NotNil(t, resumed.Turn)
	assert.Equal(t, "help me", resumed.Turn.RawQuery)
	require.NotNil(t, resumed.Turn.ReformulatedQuery)
	assert.Equal(t, "help me, specifically "+reply, *resumed.Turn.ReformulatedQuery)
	assert.Equal(t, rag.RouteRAG, resumed.Turn.Route)

	// 恢复后的回答与直接提出合并后的问题一致
	direct := newHarness(t)
	direct.llm.On(mocks.KindGenerator, answerFor)
	want, err := direct.orch.Chat(ctx, api.ChatRequest{Question: "help me, specifically " + reply})
	require.NoError(t, err)
	assert.Equal(t, want.Answer, resumed.Response.Answer)
	assert.Equal(t, want.Sources, resumed.Response.Sources)

	_, err = h.orch.Chat(ctx, api.ChatRequest{ThreadID: threadID, ClarificationReply: reply})
	testutil.AssertErrorCode(t, err, types.ErrClarificationNotFound)
}

func TestChat_StatelessClarificationUsesEphemeralThread(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.orch.Chat(ctx, api.ChatRequest{Question: "help me"})
	require.NoError(t, err)
	require.Equal(t, api.KindClarificationNeeded, resp.Kind)
	require.NotEmpty(t, resp.ThreadID)
	_, err = uuid.Parse(resp.ThreadID)
	assert.NoError(t, err)

	answer, err := h.orch.Chat(ctx, api.ChatRequest{ThreadID: resp.ThreadID, ClarificationReply: "Eligibility requirements"})
	require.NoError(t, err)
	assert.Equal(t, api.KindAnswer, answer.Kind)
	assert.Empty(t, answer.ThreadID)
	assert.Zero(t, h.memory.Len(), "ephemeral threads never reach memory")
}

func TestChat_NewQuestionAbandonsPendingClarification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	threadID := uuid.NewString()

	resp, err := h.orch.Chat(ctx, api.ChatRequest{Question: "help me", ThreadID: threadID})
	require.NoError(t, err)
	require.Equal(t, api.KindClarificationNeeded, resp.Kind)

	_, err = h.orch.Chat(ctx, api.ChatRequest{Question: "What is CCS?", ThreadID: threadID})
	require.NoError(t, err)

	_, err = h.orch.Chat(ctx, api.ChatRequest{ThreadID: threadID, ClarificationReply: "Eligibility requirements"})
	testutil.AssertErrorCode(t, err, types.ErrClarificationNotFound)
}

func TestChat_StaleReplyWithQuestionStartsNewTurn(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	threadID := uuid.NewString()

	result, err := h.orch.Process(context.Background(), api.ChatRequest{
		Question:           "What is CCS?",
		ThreadID:           threadID,
		ClarificationReply: "Eligibility requirements",
	})
	require.NoError(t, err)
	assert.Equal(t, api.KindAnswer, result.Response.Kind)
	assert.False(t, result.State.Resumed)
	assert.Equal(t, NodeRoute, result.Trace.Path[0])
	require.NotNil(t, result.Turn)
	assert.Equal(t, "What is CCS?", result.Turn.RawQuery)
}

func TestChat_ValidationExhaustedReturnsBestDraftWithCaveat(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	threadID := uuid.NewString()

	h.llm.OnSequence(mocks.KindGenerator, "Draft one [1].", "Draft two [1].", "Draft three [1].")
	h.llm.OnSequence(mocks.KindValidator,
		fixtures.VerdictReply(true, true, 0.4),
		fixtures.VerdictReply(true, false, 0.6),
		fixtures.VerdictReply(false, true, 0.5))

	result, err := h.orch.Process(ctx, api.ChatRequest{Question: "What is CCS?", ThreadID: threadID})
	require.NoError(t, err)

	resp := result.Response
	assert.Equal(t, api.KindAnswer, resp.Kind)
	assert.True(t, resp.Fallback)
	assert.True(t, strings.HasPrefix(resp.Answer, "Draft two [1]."), "highest-confidence draft wins: %q", resp.Answer)
	assert.Contains(t, resp.Answer, rag.DefaultCaveat)
	assert.NotEmpty(t, resp.Sources)

	assert.Equal(t, 2, result.State.Counters.Validation)
	assert.Equal(t, 2, result.Trace.Count(NodeRegenerate))
	assert.Equal(t, 3, h.llm.CallCount(mocks.KindValidator))

	regen := h.llm.LastCall(mocks.KindGenerator)
	require.NotNil(t, regen)
	assert.Contains(t, regen.User, "Previous draft:\nDraft two [1].")

	require.NotNil(t, result.Turn)
	assert.False(t, result.Turn.ValidationPassed)
	assert.Equal(t, 2, result.Turn.RetryCounts.Validation)
}

func TestChat_ValidationExhaustedCanAskForClarification(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withConfig(func(c *Config) {
		c.MaxValidation = 1
		c.ClarifyOnValidationExhausted = true
	}))
	ctx := context.Background()
	threadID := uuid.NewString()
	h.llm.OnText(mocks.KindValidator, fixtures.VerdictReply(false, true, 0.3))

	resp, err := h.orch.Chat(ctx, api.ChatRequest{Question: "What is the budget?", ThreadID: threadID})
	require.NoError(t, err)
	require.Equal(t, api.KindClarificationNeeded, resp.Kind)
	assert.Equal(t, threadID, resp.ThreadID)

	pending, err := h.pending.Take(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, hitl.TriggerValidationExhausted, pending.Trigger)
	assert.Equal(t, "What is the budget?", pending.OriginalQuery)
	require.NoError(t, h.pending.Save(ctx, pending))

	h.llm.OnText(mocks.KindValidator, fixtures.VerdictReply(true, true, 0.9))
	answer, err := h.orch.Process(ctx, api.ChatRequest{ThreadID: threadID, ClarificationReply: "FY2024"})
	require.NoError(t, err)
	assert.Equal(t, api.KindAnswer, answer.Response.Kind)
	assert.Zero(t, answer.State.Counters.Validation, "counters restart on resume")
	require.NotNil(t, answer.Turn)
	assert.Equal(t, "What is the budget, specifically FY2024", *answer.Turn.ReformulatedQuery)
}

func TestChat_RewriteLoopIsBounded(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.On(mocks.KindJudge, fixtures.JudgeUniform(0))

	result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "Tell me about the waitlist"})
	require.NoError(t, err)

	assert.Equal(t, rag.DefaultNoInfoAnswer, result.Response.Answer)
	assert.Equal(t, 2, result.State.Counters.Rewrite)
	assert.Equal(t, 2, h.llm.CallCount(mocks.KindRewriter))
	assert.Equal(t, 3, result.Trace.Count(NodeRetrieve))
	assert.Equal(t, "child care subsidy program information", result.State.Query)

	rewrite := h.llm.LastCall(mocks.KindRewriter)
	require.NotNil(t, rewrite)
	assert.Contains(t, rewrite.User, "Rewrite attempt: 2")
}

func TestChat_RerankJudgeFailurePassesCandidatesThrough(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.OnError(mocks.KindJudge, upstreamErr("judge down"))

	result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "What is CCS?"})
	require.NoError(t, err)
	assert.Equal(t, api.KindAnswer, result.Response.Kind)
	assert.False(t, result.Trace.Visited(NodeRewrite), "judge failure is not irrelevance")
	assert.Contains(t, result.State.Degraded, NodeRerank)
	require.NotNil(t, result.State.Rerank)
	assert.True(t, result.State.Rerank.JudgeFailed)
}

func TestChat_RerankBypassedForManagedRetrieval(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withManagedStore())

	result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "What is CCS?"})
	require.NoError(t, err)
	assert.True(t, result.State.RerankSkipped())
	assert.Zero(t, h.llm.CallCount(mocks.KindJudge))
	assert.LessOrEqual(t, len(result.State.Rerank.Candidates), rag.DefaultRerankConfig().BypassLimit)
}

func TestChat_Routes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		question   string
		setup      func(h *harness)
		wantRoute  string
		wantAnswer string
		wantPath   []string
	}{
		{
			name:       "location",
			question:   "Where is the downtown office?",
			wantRoute:  "location",
			wantAnswer: "Downtown Family Services Office",
			wantPath:   []string{NodeRoute, NodeLocation},
		},
		{
			name:       "greeting answered without classification",
			question:   "hello",
			wantRoute:  "conversational",
			wantAnswer: "Hi there! Ask me anything about the program.",
			wantPath:   []string{NodeRoute, NodeGenerateDirect},
		},
		{
			name:     "conversational reply failure uses greeting",
			question: "hello",
			setup: func(h *harness) {
				h.llm.OnError(mocks.KindConversational, upstreamErr("down"))
			},
			wantRoute:  "conversational",
			wantAnswer: GreetingAnswer,
			wantPath:   []string{NodeRoute, NodeGenerateDirect},
		},
		{
			name:       "out of scope",
			question:   "What's the weather tomorrow?",
			wantRoute:  "out_of_scope",
			wantAnswer: OutOfScopeAnswer,
			wantPath:   []string{NodeRoute, NodeOutOfScope},
		},
		{
			name:     "low confidence defaults to rag",
			question: "Where do numbers come from?",
			setup: func(h *harness) {
				h.llm.OnText(mocks.KindRouter, fixtures.RouteReply(rag.RouteLocation, 0.2))
				h.llm.On(mocks.KindJudge, fixtures.JudgeUniform(8))
			},
			wantRoute: "rag",
			wantPath:  []string{NodeRoute, NodeRetrieve, NodeRerank, NodeGenerate, NodeValidate, NodeFinalize},
		},
		{
			name:     "router failure defaults to rag",
			question: "What is CCS?",
			setup: func(h *harness) {
				h.llm.OnError(mocks.KindRouter, upstreamErr("router down"))
			},
			wantRoute: "rag",
			wantPath:  []string{NodeRoute, NodeRetrieve, NodeRerank, NodeGenerate, NodeValidate, NodeFinalize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, withLocations(fixtures.Locations()))
			if tt.setup != nil {
				tt.setup(h)
			}

			result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: tt.question})
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoute, result.Response.Route)
			assert.Equal(t, tt.wantPath, result.Trace.Path)
			if tt.wantAnswer != "" {
				assert.Contains(t, result.Response.Answer, tt.wantAnswer)
			}
			if tt.wantRoute != "rag" {
				assert.Zero(t, h.llm.CallCount(mocks.KindGenerator))
			}
		})
	}
}

func TestChat_LocationWithoutDirectory(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	resp, err := h.orch.Chat(context.Background(), api.ChatRequest{Question: "Where is the eastside office?"})
	require.NoError(t, err)
	assert.Equal(t, rag.NoLocationsAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestChat_DegradedStages(t *testing.T) {
	t.Parallel()

	t.Run("validator unavailable skips validation", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.llm.OnError(mocks.KindValidator, upstreamErr("validator down"))

		result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "What is CCS?"})
		require.NoError(t, err)
		assert.False(t, result.Response.Fallback)
		assert.Contains(t, result.State.Degraded, NodeValidate)
		assert.Zero(t, result.State.Counters.Validation)
	})

	t.Run("generator failure without draft", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.llm.OnError(mocks.KindGenerator, upstreamErr("generator down"))

		result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "What is CCS?"})
		require.NoError(t, err)
		assert.True(t, result.Response.Fallback)
		assert.Equal(t, UnavailableAnswer, result.Response.Answer)
		assert.Equal(t, []string{NodeRoute, NodeRetrieve, NodeRerank, NodeGenerate, NodeFallback}, result.Trace.Path)
		assert.Contains(t, result.Trace.Degraded, NodeGenerate)
	})

	t.Run("retrieval failure yields no-info answer", func(t *testing.T) {
		t.Parallel()
		store := mocks.NewMockChunkStore(fixtures.NewProgramStore(nil)).
			WithDenseError(upstreamErr("dense down")).
			WithSparseError(upstreamErr("sparse down"))
		h := newHarness(t, withStore(store))

		result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "What is CCS?"})
		require.NoError(t, err)
		assert.Equal(t, rag.DefaultNoInfoAnswer, result.Response.Answer)
		assert.Contains(t, result.State.Degraded, NodeRetrieve)
	})

	t.Run("reformulation failure keeps raw query", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.llm.OnError(mocks.KindReformulator, upstreamErr("reformulator down"))
		ctx := context.Background()
		threadID := uuid.NewString()

		_, err := h.orch.Chat(ctx, api.ChatRequest{Question: "What is CCS?", ThreadID: threadID})
		require.NoError(t, err)
		result, err := h.orch.Process(ctx, api.ChatRequest{Question: "what about that waitlist", ThreadID: threadID})
		require.NoError(t, err)
		assert.Contains(t, result.State.Degraded, NodeReformulate)
		assert.Equal(t, "what about that waitlist", result.State.Query)
		assert.Nil(t, result.Turn.ReformulatedQuery)
	})

	t.Run("router panic defaults to rag", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, withComponents(func(c *Components) { c.Router = panickingRouter{} }))

		result, err := h.orch.Process(context.Background(), api.ChatRequest{Question: "What is CCS?"})
		require.NoError(t, err)
		assert.Equal(t, api.KindAnswer, result.Response.Kind)
		assert.Equal(t, "rag", result.Response.Route)
		assert.Equal(t, "classifier_error", result.State.Decision.DefaultReason)
		assert.Contains(t, result.State.Degraded, NodeRoute)
	})

	t.Run("reformulator panic keeps raw query", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, withComponents(func(c *Components) {
			c.Reformulator = panickingReformulator{Reformulator: c.Reformulator}
		}))
		ctx := context.Background()
		threadID := uuid.NewString()

		_, err := h.orch.Chat(ctx, api.ChatRequest{Question: "What is CCS?", ThreadID: threadID})
		require.NoError(t, err)
		result, err := h.orch.Process(ctx, api.ChatRequest{Question: "what about that waitlist", ThreadID: threadID})
		require.NoError(t, err)
		assert.Equal(t, api.KindAnswer, result.Response.Kind)
		assert.Contains(t, result.State.Degraded, NodeReformulate)
		assert.Equal(t, "what about that waitlist", result.State.Query)
	})
}

type panickingRouter struct{}

func (panickingRouter) Route(context.Context, string) rag.RoutingDecision {
	panic("router exploded")
}

type panickingReformulator struct{ Reformulator }

func (panickingReformulator) Reformulate(context.Context, string, []rag.ConversationTurn) rag.Reformulation {
	panic("reformulator exploded")
}

func TestChat_InvalidRequests(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withConfig(func(c *Config) { c.MaxQuestionLength = 20 }))

	tests := []struct {
		name string
		req  api.ChatRequest
	}{
		{name: "empty question", req: api.ChatRequest{Question: "   "}},
		{name: "reply without thread", req: api.ChatRequest{ClarificationReply: "Eligibility"}},
		{name: "question too long", req: api.ChatRequest{Question: strings.Repeat("a", 21)}},
		{name: "reply too long", req: api.ChatRequest{ThreadID: "t", ClarificationReply: strings.Repeat("b", 21)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.Chat(context.Background(), tt.req)
			testutil.AssertErrorCode(t, err, types.ErrInvalidRequest)
		})
	}
	assert.Empty(t, h.llm.Calls())
}

func TestChat_ThreadBusy(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withLockTimeout(50*time.Millisecond))
	ctx := context.Background()

	session, err := h.memory.Acquire(ctx, "busy-thread")
	require.NoError(t, err)
	defer session.Release()

	_, err = h.orch.Chat(ctx, api.ChatRequest{Question: "What is CCS?", ThreadID: "busy-thread"})
	testutil.AssertErrorCode(t, err, types.ErrThreadBusy)
	assert.Empty(t, session.Turns())
}

func TestChat_ResumeOnBusyThreadKeepsPendingClarification(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withLockTimeout(50*time.Millisecond))
	ctx := context.Background()

	resp, err := h.orch.Chat(ctx, api.ChatRequest{Question: "help me", ThreadID: "t-1"})
	require.NoError(t, err)
	require.Equal(t, api.KindClarificationNeeded, resp.Kind)

	session, err := h.memory.Acquire(ctx, "t-1")
	require.NoError(t, err)
	_, err = h.orch.Chat(ctx, api.ChatRequest{ThreadID: "t-1", ClarificationReply: "Eligibility requirements"})
	testutil.AssertErrorCode(t, err, types.ErrThreadBusy)
	session.Release()

	answer, err := h.orch.Chat(ctx, api.ChatRequest{ThreadID: "t-1", ClarificationReply: "Eligibility requirements"})
	require.NoError(t, err)
	assert.Equal(t, api.KindAnswer, answer.Kind)
}

func TestChat_ThreadsAreIsolated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	questions := map[string]string{
		"thread-a": "What is CCS?",
		"thread-b": "Tell me about the waitlist",
		"thread-c": "What is the budget?",
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(questions)*2)
	for threadID, q := range questions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2; i++ {
				if _, err := h.orch.Chat(ctx, api.ChatRequest{Question: q, ThreadID: threadID}); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for threadID, q := range questions {
		thread, err := h.orch.Thread(ctx, threadID)
		require.NoError(t, err)
		require.Len(t, thread.Turns, 2)
		for i, turn := range thread.Turns {
			assert.Equal(t, i, turn.TurnIndex)
			assert.Equal(t, q, turn.RawQuery)
		}
	}
}

func TestChat_DeadlineExceeded(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := h.orch.Chat(ctx, api.ChatRequest{Question: "What is CCS?"})
	testutil.AssertErrorCode(t, err, types.ErrTimeout)
}

type panicRouter struct{}

func (panicRouter) Route(context.Context, string) rag.RoutingDecision { panic("router exploded") }

func TestChat_FailedTurnIsNotStored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withComponents(func(c *Components) { c.Router = panicRouter{} }))
	ctx := context.Background()

	_, err := h.orch.Chat(ctx, api.ChatRequest{Question: "What is CCS?", ThreadID: "t-1"})
	testutil.AssertErrorCode(t, err, types.ErrInternalError)

	thread, err := h.orch.Thread(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, thread.Turns)
}

func TestOrchestrator_ClearThreadDiscardsPendingClarification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.Chat(ctx, api.ChatRequest{Question: "help me", ThreadID: "t-1"})
	require.NoError(t, err)
	require.NoError(t, h.orch.ClearThread(ctx, "t-1"))

	_, err = h.orch.Chat(ctx, api.ChatRequest{ThreadID: "t-1", ClarificationReply: "Office locations"})
	testutil.AssertErrorCode(t, err, types.ErrClarificationNotFound)

	_, err = h.orch.Thread(ctx, "t-1")
	testutil.AssertErrorCode(t, err, types.ErrNotFound)
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []*turnlog.Entry
	err     error
}

func (r *captureRecorder) Record(_ context.Context, e *turnlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

func TestOrchestrator_RecordsCompletedTurns(t *testing.T) {
	t.Parallel()
	rec := &captureRecorder{}
	h := newHarness(t, withOptions(WithRecorder(rec)))
	ctx := context.Background()

	_, err := h.orch.Chat(ctx, api.ChatRequest{Question: "What is CCS?", ThreadID: "t-1"})
	require.NoError(t, err)
	_, err = h.orch.Chat(ctx, api.ChatRequest{Question: "help me", ThreadID: "t-1"})
	require.NoError(t, err)

	require.Len(t, rec.entries, 1, "clarifications are not recorded")
	e := rec.entries[0]
	assert.Equal(t, "t-1", e.ThreadID)
	assert.Equal(t, 0, e.TurnIndex)
	assert.Equal(t, "rag", e.Route)
	assert.Equal(t, "answer", e.Outcome)
	assert.True(t, e.ValidationPassed)
	assert.Positive(t, e.RetrievedChunks)
	assert.NotEmpty(t, e.Sources)
}

func TestOrchestrator_RecorderFailureDoesNotFailTurn(t *testing.T) {
	t.Parallel()
	rec := &captureRecorder{err: fmt.Errorf("database unavailable")}
	h := newHarness(t, withOptions(WithRecorder(rec)))

	resp, err := h.orch.Chat(context.Background(), api.ChatRequest{Question: "What is CCS?"})
	require.NoError(t, err)
	assert.Equal(t, api.KindAnswer, resp.Kind)
	assert.Len(t, rec.entries, 1)
}

func TestOrchestrator_TracesTurnAndNodes(t *testing.T) {
	t.Parallel()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newHarness(t, withOptions(WithTracerProvider(tp)))
	_, err := h.orch.Chat(context.Background(), api.ChatRequest{Question: "What's the weather tomorrow?"})
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"askflow.node.ROUTE", "askflow.node.OUT_OF_SCOPE", "askflow.turn"}, names)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Components{}, DefaultConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router")

	h := newHarness(t)
	c := Components{
		Router:       h.orch.router,
		Reformulator: h.orch.reformulator,
		Retriever:    h.orch.retriever,
		Reranker:     h.orch.reranker,
		Generator:    h.orch.generator,
		Validator:    h.orch.validator,
		Clarifier:    h.orch.clarifier,
		Chat:         h.orch.chat,
		Memory:       h.orch.memory,
	}
	_, err = New(c, Config{MaxRewrite: -1}, nil)
	require.Error(t, err)

	_, err = New(c, Config{MaxRewrite: 10, MaxValidation: 10, MaxSteps: 12}, nil)
	require.Error(t, err, "step limit must cover the retry bounds")

	o, err := New(c, Config{MaxRewrite: 10, MaxValidation: 10}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, o.Config().MaxSteps, minSteps(o.Config()))
}
