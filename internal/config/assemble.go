package config

import (
	"fmt"
	"strings"
	"time"

	"pagegen/internal/pipeline"
	"pagegen/internal/rate"
	"pagegen/pkg/contract"
	"pagegen/pkg/registry"
)

func invalid(format string, a ...any) error {
	return fmt.Errorf("config: "+format+": %w", append(a, contract.ErrConfiguration)...)
}

// Validate 对最小必要边界做静态校验；错误均包装 ErrConfiguration。
func Validate(cfg Config) error {
	// 输入路径不得为空字符串；"-" 不能与其他根混用。空列表表示 STDIN。
	dash := false
	for _, r := range cfg.Inputs {
		switch strings.TrimSpace(r) {
		case "":
			return invalid("input path cannot be empty")
		case "-":
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return invalid("'-' cannot be mixed with other roots")
	}
	if IntValue(cfg.Concurrency) < 1 {
		return invalid("concurrency must be >= 1")
	}
	if IntValue(cfg.MaxRetries) < 0 {
		return invalid("max_retries must be >= 0")
	}
	if IntValue(cfg.RetryBaseDelayMS) < 0 || IntValue(cfg.PauseMS) < 0 {
		return invalid("retry_base_delay_ms and pause_ms must be >= 0")
	}
	if IntValue(cfg.MaxTotalPages) < 0 {
		return invalid("max_total_pages must be >= 0")
	}
	maxOut := IntValue(cfg.MaxOutputTokens)
	if maxOut <= 0 {
		return invalid("max_output_tokens must be > 0")
	}
	if cfg.LLM == "" {
		return invalid("llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return invalid("provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return invalid("provider %q missing client", cfg.LLM)
	}
	if prov.Limits.MaxTokensPerReq > 0 && maxOut > prov.Limits.MaxTokensPerReq {
		return invalid("max_output_tokens(%d) exceeds provider.max_tokens_per_req(%d)", maxOut, prov.Limits.MaxTokensPerReq)
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Splitter, d.Splitter); registry.Splitter[name] == nil {
		return invalid("splitter %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return invalid("decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Assembler, d.Assembler); registry.Assembler[name] == nil {
		return invalid("assembler %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered", name)
	}
	if registry.LLMClient[prov.Client] == nil {
		return invalid("llm client %q not registered", prov.Client)
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate 与分组键）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var comp pipeline.Components
	if err := Validate(cfg); err != nil {
		return comp, pipeline.Settings{}, err
	}
	d := Defaults().Components
	var err error
	if comp.Reader, err = registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("reader: %w", err)
	}
	if comp.Splitter, err = registry.Splitter[effName(cfg.Components.Splitter, d.Splitter)](cfg.Options.Splitter); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("splitter: %w", err)
	}
	if comp.Extractor, err = registry.Decoder[effName(cfg.Components.Decoder, d.Decoder)](cfg.Options.Decoder); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("decoder: %w", err)
	}
	if comp.Assembler, err = registry.Assembler[effName(cfg.Components.Assembler, d.Assembler)](cfg.Options.Assembler); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("assembler: %w", err)
	}
	if comp.Writer, err = registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("writer: %w", err)
	}
	prov := cfg.Provider[cfg.LLM]
	if comp.Backend, err = registry.LLMClient[prov.Client](prov.Options); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("llm %s: %w", cfg.LLM, err)
	}
	comp.Strategies = registry.Strategies()

	// 分组键优先由 API Key 派生；失败时退化为 provider 名称。
	key, derr := rate.DeriveKey(prov.Client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{key: prov.Limits}, nil)

	set := pipeline.Settings{
		Inputs:          cloneStrings(cfg.Inputs),
		Difficulty:      cfg.Difficulty,
		Seed:            cfg.Seed,
		MaxTotal:        IntValue(cfg.MaxTotalPages),
		Caps:            cfg.PagesPerCategory,
		Concurrency:     IntValue(cfg.Concurrency),
		MaxRetries:      IntValue(cfg.MaxRetries),
		RetryBaseDelay:  time.Duration(IntValue(cfg.RetryBaseDelayMS)) * time.Millisecond,
		Pause:           time.Duration(IntValue(cfg.PauseMS)) * time.Millisecond,
		MaxOutputTokens: IntValue(cfg.MaxOutputTokens),
		Gate:            gate,
		GateKey:         key,
		BackendName:     cfg.LLM,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
