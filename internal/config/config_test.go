package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pagegen/internal/limiter"
	"pagegen/pkg/contract"
)

// 解析完整 config.json
func TestLoadFileJSON(t *testing.T) {
	cfg, err := LoadFile("../../testdata/config/basic.json")
	require.NoError(t, err)
	require.Equal(t, "gemini", cfg.LLM)
	require.Equal(t, "medium", cfg.Difficulty)
	require.NotNil(t, cfg.Seed)
	require.Equal(t, int64(42), *cfg.Seed)
	require.Equal(t, limiter.Caps{"coloring": 2, "maze": 1}, cfg.PagesPerCategory)
	require.Equal(t, Int(0), cfg.MaxRetries, "显式 0 应保留")
	require.Nil(t, cfg.PauseMS, "缺失字段保持未设置")
	require.Equal(t, 60, cfg.Provider["gemini"].Limits.RPM)

	merged := Merge(Defaults(), cfg)
	require.NoError(t, Validate(merged))
	require.Equal(t, 0, IntValue(merged.MaxRetries))
	require.Equal(t, 0, IntValue(merged.PauseMS))
	require.Equal(t, 250, IntValue(merged.RetryBaseDelayMS))
}

func TestLoadFileYAML(t *testing.T) {
	cfg, err := LoadFile("../../testdata/config/basic.yaml")
	require.NoError(t, err)
	require.Equal(t, "mock", cfg.LLM)
	require.Equal(t, limiter.Caps{"coloring": 3, "tracing": 2}, cfg.PagesPerCategory)
	require.JSONEq(t, `{"response_mode":"plain"}`, string(cfg.Provider["mock"].Options))
	require.JSONEq(t, `{"output_dir":"out"}`, string(cfg.Options.Writer))
	require.NoError(t, Validate(Merge(Defaults(), cfg)))
}

func TestLoadUnknownField(t *testing.T) {
	_, err := LoadJSON([]byte(`{"unknown":1}`))
	require.ErrorIs(t, err, contract.ErrConfiguration)

	_, err = LoadYAML([]byte("llm: mock\nbogus: true\n"))
	require.ErrorIs(t, err, contract.ErrConfiguration)

	_, err = LoadJSON(nil)
	require.ErrorIs(t, err, contract.ErrConfiguration)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

// ENV 覆盖部分字段
func TestEnvOverlay(t *testing.T) {
	over, err := EnvOverlay([]string{
		"PAGEGEN_INPUTS=a, b",
		"PAGEGEN_CONCURRENCY=3",
		"PAGEGEN_MAX_RETRIES=0",
		"PAGEGEN_SEED=9",
		"PAGEGEN_PAGES_PER_CATEGORY=maze=1",
		"PAGEGEN_LLM=openai",
		"PAGEGEN_LOG_LEVEL=warn",
		"PAGEGEN_COMPONENTS_ASSEMBLER=jsonl",
		"PAGEGEN_PROVIDER__openai__LIMITS_RPM=10",
		"OTHER_VAR=1",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, over.Inputs)
	require.Equal(t, Int(3), over.Concurrency)
	require.Equal(t, Int(0), over.MaxRetries)
	require.Nil(t, over.PauseMS)
	require.Equal(t, int64(9), *over.Seed)
	require.Equal(t, limiter.Caps{"maze": 1}, over.PagesPerCategory)
	require.Equal(t, "warn", over.Logging.Level)
	require.Equal(t, "jsonl", over.Components.Assembler)

	// 限额覆盖不应清空文件中的 client/options
	base := DefaultTemplateConfig()
	merged := Merge(base, over)
	require.Equal(t, "openai", merged.Provider["openai"].Client)
	require.Equal(t, 10, merged.Provider["openai"].Limits.RPM)
	require.Equal(t, base.Provider["openai"].Limits.TPM, merged.Provider["openai"].Limits.TPM)
	require.NotEmpty(t, merged.Provider["openai"].Options)
	require.Equal(t, 0, IntValue(merged.MaxRetries))
}

func TestEnvOverlayErrors(t *testing.T) {
	_, err := EnvOverlay([]string{"PAGEGEN_CONCURRENCY=many"})
	require.ErrorIs(t, err, contract.ErrConfiguration)
	_, err = EnvOverlay([]string{"PAGEGEN_PROVIDER__x__OPTIONS_JSON={bad"})
	require.ErrorIs(t, err, contract.ErrConfiguration)

	over, err := EnvOverlay([]string{"PAGEGEN_PROVIDER__x__CLIENT=", "PAGEGEN_PROVIDER____CLIENT=mock"})
	require.NoError(t, err)
	require.Empty(t, over.Provider)
}

func TestMergeKeepsBase(t *testing.T) {
	base := DefaultTemplateConfig()
	out := Merge(base, Blank())
	require.Equal(t, base.MaxRetries, out.MaxRetries)
	require.Equal(t, base.RetryBaseDelayMS, out.RetryBaseDelayMS)
	require.Equal(t, base.Components, out.Components)
	require.Equal(t, base.LLM, out.LLM)

	over := Blank()
	over.Inputs = []string{"x"}
	over.Options.Writer = json.RawMessage(`{"output_dir":"elsewhere"}`)
	out = Merge(base, over)
	require.Equal(t, []string{"x"}, out.Inputs)
	require.JSONEq(t, `{"output_dir":"elsewhere"}`, string(out.Options.Writer))
	require.Equal(t, []string{"-"}, base.Inputs, "Merge 不应修改 base")
}

// 显式负值与显式 0 在各层都被保留：负值交由校验拒绝，0 可解除上层限额。
func TestMergeKeepsExplicitValues(t *testing.T) {
	file, err := LoadJSON([]byte(`{"max_retries": -1, "max_total_pages": 5}`))
	require.NoError(t, err)
	cfg := Merge(Defaults(), file)
	require.Equal(t, -1, IntValue(cfg.MaxRetries))
	require.ErrorIs(t, Validate(cfg), contract.ErrConfiguration)

	over := Blank()
	over.MaxRetries = Int(1)
	over.MaxTotalPages = Int(0)
	cfg = Merge(cfg, over)
	require.Equal(t, 1, IntValue(cfg.MaxRetries))
	require.Equal(t, 0, IntValue(cfg.MaxTotalPages), "显式 0 解除总量上限")

	env, err := EnvOverlay([]string{"PAGEGEN_MAX_RETRIES=-1", "PAGEGEN_CONCURRENCY=0"})
	require.NoError(t, err)
	cfg = Merge(Defaults(), env)
	require.Equal(t, -1, IntValue(cfg.MaxRetries))
	require.Equal(t, 0, IntValue(cfg.Concurrency))
	require.Error(t, Validate(cfg))
}

func TestValidateErrors(t *testing.T) {
	mutate := map[string]func(*Config){
		"mixed dash":     func(c *Config) { c.Inputs = []string{"-", "a"} },
		"empty input":    func(c *Config) { c.Inputs = []string{" "} },
		"concurrency":    func(c *Config) { c.Concurrency = Int(0) },
		"no concurrency": func(c *Config) { c.Concurrency = nil },
		"retries":        func(c *Config) { c.MaxRetries = Int(-1) },
		"pause":          func(c *Config) { c.PauseMS = Int(-5) },
		"max total":      func(c *Config) { c.MaxTotalPages = Int(-1) },
		"output tokens":  func(c *Config) { c.MaxOutputTokens = Int(0) },
		"no llm":         func(c *Config) { c.LLM = "" },
		"missing prov":   func(c *Config) { c.LLM = "nope" },
		"empty client":   func(c *Config) { c.Provider["mock"] = Provider{} },
		"unknown client": func(c *Config) { c.Provider["mock"] = Provider{Client: "nope"} },
		"reader":         func(c *Config) { c.Components.Reader = "nope" },
		"assembler":      func(c *Config) { c.Components.Assembler = "pdf" },
		"per req": func(c *Config) {
			p := c.Provider["mock"]
			p.Limits.MaxTokensPerReq = 100
			c.Provider["mock"] = p
		},
	}
	require.NoError(t, Validate(DefaultTemplateConfig()))
	for name, fn := range mutate {
		cfg := DefaultTemplateConfig()
		fn(&cfg)
		require.ErrorIs(t, Validate(cfg), contract.ErrConfiguration, name)
	}
}

func TestAssemble(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.Inputs = []string{"../../testdata/requests/booklet.json"}
	cfg.PauseMS = Int(5)
	cfg.Options.Writer = json.RawMessage(`{"output_dir":"` + t.TempDir() + `"}`)
	comp, set, err := Assemble(cfg)
	require.NoError(t, err)
	require.NotNil(t, comp.Reader)
	require.NotNil(t, comp.Splitter)
	require.NotNil(t, comp.Strategies)
	require.NotNil(t, comp.Backend)
	require.NotNil(t, comp.Extractor)
	require.NotNil(t, comp.Assembler)
	require.NotNil(t, comp.Writer)
	require.Equal(t, 5*time.Millisecond, set.Pause)
	require.Equal(t, time.Second, set.RetryBaseDelay)
	require.Equal(t, 2, set.MaxRetries)
	require.Equal(t, "mock", set.BackendName)
	require.NotNil(t, set.Gate)
	require.NotEmpty(t, set.GateKey)

	_, _, err = Assemble(Config{})
	require.ErrorIs(t, err, contract.ErrConfiguration)

	cfg.Options.Splitter = json.RawMessage(`{"format":"xml"}`)
	_, _, err = Assemble(cfg)
	require.ErrorIs(t, err, contract.ErrConfiguration)
}

func TestTemplateRoundTrip(t *testing.T) {
	b, err := json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, b, 0o644))
	cfg, err := LoadFile(p)
	require.NoError(t, err)
	require.NoError(t, Validate(Merge(Defaults(), cfg)))
	require.Equal(t, "mock", cfg.LLM)
}

func TestSplitCommaClone(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, splitComma("a, b , ,c"))
	require.Nil(t, splitComma(""))
	src := json.RawMessage("abc")
	dst := cloneRaw(src)
	src[0] = 'x'
	require.Equal(t, "abc", string(dst))
}
