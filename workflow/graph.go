package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// END 是终止节点名, 边返回 END 时本次执行结束.
const END = "__end__"

// DefaultMaxSteps 单次执行允许的最大节点调用次数.
const DefaultMaxSteps = 50

// NodeFunc 节点函数: 读取当前状态, 返回部分状态更新.
type NodeFunc[S, U any] func(ctx context.Context, state S) (U, error)

// MergeFunc 将节点的部分更新合并到状态中, 返回新状态.
type MergeFunc[S, U any] func(state S, update U) S

// EdgeFunc 条件边: 对任意状态都必须返回一个已声明的目标节点或 END.
type EdgeFunc[S any] func(state S) string

// DegradeFunc 节点失败 (返回错误或 panic) 时的降级更新.
type DegradeFunc[S, U any] func(state S, err error) U

// Observer 观察节点执行, 用于追踪与指标.
type Observer interface {
	// NodeStarted 在节点执行前调用, 返回的 ctx 传给节点函数.
	NodeStarted(ctx context.Context, graph, node string) context.Context
	// NodeFinished 在节点执行后调用; degraded 表示使用了降级更新.
	NodeFinished(ctx context.Context, graph, node string, elapsed time.Duration, err error, degraded bool)
}

type node[S, U any] struct {
	name    string
	run     NodeFunc[S, U]
	degrade DegradeFunc[S, U]
	next    EdgeFunc[S]
	targets map[string]bool
}

// Graph 是有界的状态图执行器. 构建后只读, 可被多个 goroutine 并发执行.
type Graph[S, U any] struct {
	name      string
	nodes     map[string]*node[S, U]
	entry     string
	merge     MergeFunc[S, U]
	maxSteps  int
	observers []Observer
	logger    *zap.Logger
}

// Trace 记录一次执行经过的节点
type Trace struct {
	Path     []string `json:"path"`
	Degraded []string `json:"degraded,omitempty"`
	Steps    int      `json:"steps"`
}

// Visited 判断节点是否被执行过
func (t *Trace) Visited(name string) bool {
	for _, n := range t.Path {
		if n == name {
			return true
		}
	}
	return false
}

// Count 返回节点被执行的次数
func (t *Trace) Count(name string) int {
	n := 0
	for _, p := range t.Path {
		if p == name {
			n++
		}
	}
	return n
}

// RunOption 配置单次执行
type RunOption func(*runOptions)

type runOptions struct {
	start string
}

// StartAt 从指定节点开始执行, 用于恢复挂起的执行.
func StartAt(name string) RunOption {
	return func(o *runOptions) { o.start = name }
}

// Name 返回图名称
func (g *Graph[S, U]) Name() string { return g.name }

// MaxSteps 返回步数上限
func (g *Graph[S, U]) MaxSteps() int { return g.maxSteps }

// Run 从入口节点开始执行直到 END.
// 没有降级函数的节点失败时返回该错误; 超过步数上限时返回 STEP_LIMIT_EXCEEDED.
// 出错时仍返回已合并的状态与轨迹.
func (g *Graph[S, U]) Run(ctx context.Context, state S, opts ...RunOption) (S, *Trace, error) {
	o := runOptions{start: g.entry}
	for _, opt := range opts {
		opt(&o)
	}
	trace := &Trace{}

	current := o.start
	if _, ok := g.nodes[current]; !ok {
		return state, trace, types.NewInternalError(fmt.Sprintf("graph %s: unknown start node %q", g.name, current))
	}

	for current != END {
		if err := ctx.Err(); err != nil {
			return state, trace, err
		}
		if trace.Steps >= g.maxSteps {
			g.logger.Error("step limit exceeded",
				zap.Int("max_steps", g.maxSteps),
				zap.Strings("path", trace.Path))
			return state, trace, types.NewError(types.ErrStepLimitExceeded,
				fmt.Sprintf("graph %s exceeded %d steps", g.name, g.maxSteps))
		}

		n := g.nodes[current]
		trace.Steps++
		trace.Path = append(trace.Path, current)

		update, degraded, err := g.execute(ctx, n, state)
		if err != nil {
			return state, trace, err
		}
		if degraded {
			trace.Degraded = append(trace.Degraded, current)
		}
		state = g.merge(state, update)

		next := n.next(state)
		if next != END && !n.targets[next] {
			return state, trace, types.NewInternalError(
				fmt.Sprintf("graph %s: edge from %q returned undeclared target %q", g.name, current, next))
		}
		current = next
	}
	return state, trace, nil
}

// execute 运行单个节点; 错误与 panic 在节点边界被捕获并映射为降级更新.
func (g *Graph[S, U]) execute(ctx context.Context, n *node[S, U], state S) (update U, degraded bool, err error) {
	nodeCtx := ctx
	for _, obs := range g.observers {
		nodeCtx = obs.NodeStarted(nodeCtx, g.name, n.name)
	}
	start := time.Now()

	update, runErr := g.call(nodeCtx, n, state)
	if runErr != nil && n.degrade != nil && ctx.Err() == nil {
		g.logger.Warn("node failed, degrading",
			zap.String("node", n.name),
			zap.Error(runErr))
		update = n.degrade(state, runErr)
		degraded = true
	} else if runErr != nil {
		err = runErr
	}

	for _, obs := range g.observers {
		obs.NodeFinished(nodeCtx, g.name, n.name, time.Since(start), runErr, degraded)
	}
	return update, degraded, err
}

func (g *Graph[S, U]) call(ctx context.Context, n *node[S, U], state S) (update U, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("node panicked",
				zap.String("node", n.name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = types.NewInternalError(fmt.Sprintf("node %s panicked: %v", n.name, r))
		}
	}()
	return n.run(ctx, state)
}
