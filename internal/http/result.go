package httpapi

// Result 体位查询接口（/api/positions*）的包装结构，
// 与视频分析类接口不同，这些接口面向护理站看板，统一使用 code/type/message 外壳
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

// Ok 包装成功结果；nil 切片交给调用方提前归一为空切片
func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Fail 失败结果不携带 result
func Fail(message string) Result[*struct{}] {
	return Result[*struct{}]{Code: ResultError, Type: "error", Message: message}
}
