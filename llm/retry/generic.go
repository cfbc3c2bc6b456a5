package retry

import "context"

// DoTyped 是 Retryer.DoWithResult 的泛型版本, 调用方无需对结果做类型断言.
// fn 返回的零值 (包括 nil 指针) 原样透传.
func DoTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	v, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}
