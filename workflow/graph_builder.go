package workflow

import (
	"fmt"

	"go.uber.org/zap"
)

// GraphBuilder 以 fluent API 构建 Graph
type GraphBuilder[S, U any] struct {
	graph *Graph[S, U]
	order []string
	errs  []error
}

// NewGraphBuilder 创建图构建器
func NewGraphBuilder[S, U any](name string, merge MergeFunc[S, U]) *GraphBuilder[S, U] {
	return &GraphBuilder[S, U]{
		graph: &Graph[S, U]{
			name:     name,
			nodes:    make(map[string]*node[S, U]),
			merge:    merge,
			maxSteps: DefaultMaxSteps,
			logger:   zap.NewNop(),
		},
	}
}

// WithLogger sets a custom logger
func (b *GraphBuilder[S, U]) WithLogger(logger *zap.Logger) *GraphBuilder[S, U] {
	if logger != nil {
		b.graph.logger = logger.With(zap.String("component", "graph"), zap.String("graph", b.graph.name))
	}
	return b
}

// WithMaxSteps 设置步数上限
func (b *GraphBuilder[S, U]) WithMaxSteps(n int) *GraphBuilder[S, U] {
	if n > 0 {
		b.graph.maxSteps = n
	}
	return b
}

// WithObserver 添加节点观察者
func (b *GraphBuilder[S, U]) WithObserver(obs Observer) *GraphBuilder[S, U] {
	if obs != nil {
		b.graph.observers = append(b.graph.observers, obs)
	}
	return b
}

// AddNode 添加节点
func (b *GraphBuilder[S, U]) AddNode(name string, fn NodeFunc[S, U]) *GraphBuilder[S, U] {
	switch {
	case name == "" || name == END:
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
	case b.graph.nodes[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("duplicate node: %s", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("node %s has no function", name))
	default:
		b.graph.nodes[name] = &node[S, U]{name: name, run: fn, targets: make(map[string]bool)}
		b.order = append(b.order, name)
	}
	return b
}

// WithDegrade 为节点设置降级函数
func (b *GraphBuilder[S, U]) WithDegrade(name string, fn DegradeFunc[S, U]) *GraphBuilder[S, U] {
	n, ok := b.graph.nodes[name]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("degrade for unknown node: %s", name))
		return b
	}
	n.degrade = fn
	return b
}

// AddEdge 添加无条件边
func (b *GraphBuilder[S, U]) AddEdge(from, to string) *GraphBuilder[S, U] {
	return b.AddConditionalEdge(from, func(S) string { return to }, to)
}

// AddConditionalEdge 添加条件边; targets 声明边可能返回的全部目标.
func (b *GraphBuilder[S, U]) AddConditionalEdge(from string, fn EdgeFunc[S], targets ...string) *GraphBuilder[S, U] {
	n, ok := b.graph.nodes[from]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("edge references non-existent source node: %s", from))
		return b
	}
	if n.next != nil {
		b.errs = append(b.errs, fmt.Errorf("node %s already has an outgoing edge", from))
		return b
	}
	if len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("edge from %s declares no targets", from))
		return b
	}
	n.next = fn
	for _, t := range targets {
		n.targets[t] = true
	}
	return b
}

// SetEntry 设置入口节点
func (b *GraphBuilder[S, U]) SetEntry(name string) *GraphBuilder[S, U] {
	b.graph.entry = name
	return b
}

// Build 校验并返回图
func (b *GraphBuilder[S, U]) Build() (*Graph[S, U], error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("graph %s validation failed: %w", b.graph.name, err)
	}
	b.graph.logger.Debug("graph built",
		zap.Int("nodes", len(b.graph.nodes)),
		zap.String("entry", b.graph.entry))
	return b.graph, nil
}

func (b *GraphBuilder[S, U]) validate() error {
	if len(b.errs) > 0 {
		return b.errs[0]
	}
	if b.graph.merge == nil {
		return fmt.Errorf("merge function not set")
	}
	if len(b.graph.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	if b.graph.entry == "" {
		return fmt.Errorf("entry node not set")
	}
	if _, ok := b.graph.nodes[b.graph.entry]; !ok {
		return fmt.Errorf("entry node does not exist: %s", b.graph.entry)
	}
	for _, name := range b.order {
		n := b.graph.nodes[name]
		if n.next == nil {
			return fmt.Errorf("node %s has no outgoing edge", name)
		}
		for t := range n.targets {
			if t == END {
				continue
			}
			if _, ok := b.graph.nodes[t]; !ok {
				return fmt.Errorf("edge from %s references non-existent target node: %s", name, t)
			}
		}
	}
	return nil
}
