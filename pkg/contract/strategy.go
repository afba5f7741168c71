package contract

// Chooser 从候选集中选出一个标签（由 VarietySelector 提供）。
type Chooser func(candidates []string) (string, error)

// BuildInput: 构建请求文本所需的全部输入。
type BuildInput struct {
	Theme      string
	Difficulty string
	PageNumber int
	// History: 该类型本次运行已使用的标签（只读副本）。
	History []string
	Choose  Chooser
}

// Request: 发往后端的请求文本与候选标签（可为空）。
type Request struct {
	Text  string
	Label string
}

// Strategy: 按类型构建请求并从解析结果中取回所选标签。
type Strategy interface {
	Category() Category
	Build(in BuildInput) (Request, error)
	// ExtractSelection 返回解析载荷中的标签；无可追踪标签的类型返回 false。
	ExtractSelection(parsed map[string]any) (string, bool)
	// Required 返回结构化输出契约中的必填字段。
	Required() []string
}
