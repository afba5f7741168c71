package prompt

// Estimator 近似估算文本 token 数。
type Estimator func(s string) int

// MakeEstimator 返回近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) Estimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// RequestTokens 估算单次请求的 token 规模（输入 + 预期输出上限），供限流闸门判定。
func RequestTokens(text string, bytesPerToken, maxOutput int) int {
	if maxOutput < 0 {
		maxOutput = 0
	}
	return MakeEstimator(bytesPerToken)(text) + maxOutput
}
