package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"pagegen/internal/strategytest"
	"pagegen/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("未知字段应报配置错误: %v", err)
	}
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	unknown := json.RawMessage(`{"x":1}`)
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("reader: %v", err)
		}
		if _, err := Reader["fs"](unknown); err == nil {
			t.Fatalf("reader 未对未知字段报错")
		}
	})
	t.Run("splitter", func(t *testing.T) {
		if _, err := Splitter["requests"](json.RawMessage(`{"format":"yaml"}`)); err != nil {
			t.Fatalf("splitter: %v", err)
		}
		if _, err := Splitter["requests"](unknown); err == nil {
			t.Fatalf("splitter 未对未知字段报错")
		}
	})
	t.Run("decoder", func(t *testing.T) {
		for _, name := range []string{"lenient", "strict"} {
			if _, err := Decoder[name](nil); err != nil {
				t.Fatalf("decoder %s: %v", name, err)
			}
			if _, err := Decoder[name](unknown); err == nil {
				t.Fatalf("decoder %s 未对未知字段报错", name)
			}
		}
	})
	t.Run("assembler", func(t *testing.T) {
		for _, name := range []string{"json", "jsonl"} {
			if _, err := Assembler[name](json.RawMessage(`{}`)); err != nil {
				t.Fatalf("assembler %s: %v", name, err)
			}
			if _, err := Assembler[name](unknown); err == nil {
				t.Fatalf("assembler %s 未对未知字段报错", name)
			}
		}
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		if _, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, tmp))); err != nil {
			t.Fatalf("writer: %v", err)
		}
		if _, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp))); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
		if _, err := Writer["fs"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrConfiguration) {
			t.Fatalf("writer 缺少 output_dir 应报配置错误: %v", err)
		}
	})
	t.Run("llm-offline", func(t *testing.T) {
		for _, name := range []string{"mock", "flaky"} {
			if _, err := LLMClient[name](json.RawMessage(`{}`)); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
	})
	t.Run("llm-missing-key", func(t *testing.T) {
		for env, name := range map[string]string{"OPENAI_API_KEY": "openai", "GOOGLE_API_KEY": "gemini", "ANTHROPIC_API_KEY": "anthropic"} {
			t.Setenv(env, "")
			if _, err := LLMClient[name](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrConfiguration) {
				t.Fatalf("%s 未按预期报错: %v", name, err)
			}
		}
	})
}

// TestStrategiesResolve 内置六类可解析，未知类型报配置错误。
func TestStrategiesResolve(t *testing.T) {
	tbl := Strategies()
	for _, c := range contract.Categories() {
		s, err := tbl.Resolve(c)
		if err != nil || s.Category() != c {
			t.Fatalf("resolve %s: %v", c, err)
		}
	}
	if _, err := tbl.Resolve("puzzle"); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("未知类型应为 ErrConfiguration: %v", err)
	}
	if got := tbl.Categories(); len(got) != 6 || got[0] != contract.Coloring {
		t.Fatalf("categories: %v", got)
	}
}

type stubStrategy struct{ cat contract.Category }

func (s stubStrategy) Category() contract.Category { return s.cat }
func (stubStrategy) Required() []string            { return []string{"title"} }
func (stubStrategy) Build(in contract.BuildInput) (contract.Request, error) {
	return contract.Request{Text: "Return ONLY valid JSON: {\"title\":\"x\"}"}, nil
}
func (stubStrategy) ExtractSelection(map[string]any) (string, bool) { return "", false }

// TestRegister 新类型通过 Register 加入，已有类型不可覆盖。
func TestRegister(t *testing.T) {
	tbl := Strategies()
	if err := tbl.Register(stubStrategy{cat: "puzzle"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := tbl.Resolve("puzzle"); err != nil {
		t.Fatalf("resolve puzzle: %v", err)
	}
	if err := tbl.Register(stubStrategy{cat: contract.Maze}); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("覆盖已有类型应报错: %v", err)
	}
	if err := tbl.Register(nil); !errors.Is(err, contract.ErrInvalidArgument) {
		t.Fatalf("nil 策略应报错: %v", err)
	}
	if got := tbl.Categories(); got[len(got)-1] != "puzzle" {
		t.Fatalf("扩展类型应排在末尾: %v", got)
	}
	s, _ := tbl.Resolve(contract.Coloring)
	req, err := s.Build(contract.BuildInput{Theme: "animals", Choose: strategytest.Pick("cat")})
	if err != nil || req.Label != "cat" {
		t.Fatalf("build: %v %+v", err, req)
	}
}
