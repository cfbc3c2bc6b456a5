// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
//
// 使用方法:
//
//	testutil.AssertErrorCode(t, err, types.ErrThreadBusy)
//	reply := testutil.MustJSON(map[string]any{"route": "rag"})
// =============================================================================
package testutil

import (
	"encoding/json"
	"testing"

	"github.com/BaSui01/askflow/types"
)

// AssertErrorCode 断言 err 链中包含指定错误码的 *types.Error
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %s but got nil", code)
		return
	}
	if got := types.GetErrorCode(err); got != code {
		t.Errorf("error code mismatch: expected %s, got %q (%v)", code, got, err)
	}
}

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
