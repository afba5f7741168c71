package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pagegen/internal/limiter"
	"pagegen/pkg/contract"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Difficulty:       "easy",
		MaxTotalPages:    Int(0),
		Concurrency:      Int(1),
		MaxRetries:       Int(2),
		RetryBaseDelayMS: Int(1000),
		PauseMS:          Int(0),
		MaxOutputTokens:  Int(768),
		Logging:          Logging{Level: "info"},
		Components: Components{
			Reader:    "fs",
			Splitter:  "requests",
			Decoder:   "lenient",
			Assembler: "json",
			Writer:    "fs",
		},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 经 YAML 解码后转为 JSON，其余按 JSON 严格解析。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Blank(), fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(raw)
	default:
		return LoadJSON(raw)
	}
}

// LoadJSON 解析原始 JSON（严格拒绝未知字段）；未出现的可为 0 字段保持未设置。
func LoadJSON(raw []byte) (Config, error) {
	cfg := Blank()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, fmt.Errorf("config: empty document: %w", contract.ErrConfiguration)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Blank(), fmt.Errorf("config: %v: %w", err, contract.ErrConfiguration)
	}
	return cfg, nil
}

// LoadYAML 将 YAML 文档转为 JSON 后走同一严格解析路径。
func LoadYAML(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Blank(), fmt.Errorf("config: yaml: %v: %w", err, contract.ErrConfiguration)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Blank(), fmt.Errorf("config: yaml to json: %v: %w", err, contract.ErrConfiguration)
	}
	return LoadJSON(js)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为"替换"；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if s := strings.TrimSpace(over.Difficulty); s != "" {
		out.Difficulty = s
	}
	if over.Seed != nil {
		v := *over.Seed
		out.Seed = &v
	}
	mergeInt(&out.MaxTotalPages, over.MaxTotalPages)
	if len(over.PagesPerCategory) > 0 {
		caps := make(limiter.Caps, len(over.PagesPerCategory))
		for k, v := range over.PagesPerCategory {
			caps[k] = v
		}
		out.PagesPerCategory = caps
	}
	// 显式 0 有语义（不限/不重试/无间隔），nil 表示未覆盖。
	mergeInt(&out.Concurrency, over.Concurrency)
	mergeInt(&out.MaxRetries, over.MaxRetries)
	mergeInt(&out.RetryBaseDelayMS, over.RetryBaseDelayMS)
	mergeInt(&out.PauseMS, over.PauseMS)
	mergeInt(&out.MaxOutputTokens, over.MaxOutputTokens)
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}

	// 组件名（空不覆盖）
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Components.Reader, over.Components.Reader)
	pick(&out.Components.Splitter, over.Components.Splitter)
	pick(&out.Components.Decoder, over.Components.Decoder)
	pick(&out.Components.Assembler, over.Components.Assembler)
	pick(&out.Components.Writer, over.Components.Writer)

	// Provider（按字段覆盖：非空 client/options、非零限额）
	if len(over.Provider) > 0 {
		prov := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			prov[k] = v
		}
		for k, v := range over.Provider {
			prov[k] = mergeProvider(prov[k], v)
		}
		out.Provider = prov
	}

	// Options（完整替换对应键）
	raw := func(dst *json.RawMessage, v json.RawMessage) {
		if len(v) > 0 {
			*dst = cloneRaw(v)
		}
	}
	raw(&out.Options.Reader, over.Options.Reader)
	raw(&out.Options.Splitter, over.Options.Splitter)
	raw(&out.Options.Decoder, over.Options.Decoder)
	raw(&out.Options.Assembler, over.Options.Assembler)
	raw(&out.Options.Writer, over.Options.Writer)

	if s := strings.TrimSpace(over.LLM); s != "" {
		out.LLM = s
	}
	return out
}

func mergeInt(dst **int, v *int) {
	if v != nil {
		*dst = Int(*v)
	}
}

func mergeProvider(base, over Provider) Provider {
	if over.Client != "" {
		base.Client = over.Client
	}
	if len(over.Options) > 0 {
		base.Options = cloneRaw(over.Options)
	}
	if over.Limits.RPM != 0 {
		base.Limits.RPM = over.Limits.RPM
	}
	if over.Limits.TPM != 0 {
		base.Limits.TPM = over.Limits.TPM
	}
	if over.Limits.MaxTokensPerReq != 0 {
		base.Limits.MaxTokensPerReq = over.Limits.MaxTokensPerReq
	}
	return base
}

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "PAGEGEN_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：INPUTS, DIFFICULTY, SEED, MAX_TOTAL_PAGES, PAGES_PER_CATEGORY, CONCURRENCY, MAX_RETRIES,
// RETRY_BASE_DELAY_MS, PAUSE_MS, MAX_OUTPUT_TOKENS, LOG_LEVEL, LLM, COMPONENTS_*，
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON。
// 整数值非法时返回 ErrConfiguration。
func EnvOverlay(environ []string) (Config, error) {
	over := Blank()
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key, val := kv[len(EnvPrefix):eq], kv[eq+1:]
		// 空值视为未设置
		if strings.TrimSpace(val) == "" {
			continue
		}
		atoi := func(dst *int) error {
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return fmt.Errorf("config: env %s%s: %v: %w", EnvPrefix, key, err, contract.ErrConfiguration)
			}
			*dst = n
			return nil
		}
		numPtr := func(dst **int) error {
			var n int
			if err := atoi(&n); err != nil {
				return err
			}
			*dst = Int(n)
			return nil
		}
		var err error
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "DIFFICULTY":
			over.Difficulty = strings.TrimSpace(val)
		case "SEED":
			var n int
			if err = atoi(&n); err == nil {
				s := int64(n)
				over.Seed = &s
			}
		case "MAX_TOTAL_PAGES":
			err = numPtr(&over.MaxTotalPages)
		case "PAGES_PER_CATEGORY":
			over.PagesPerCategory = limiter.ParseCaps(val)
		case "CONCURRENCY":
			err = numPtr(&over.Concurrency)
		case "MAX_RETRIES":
			err = numPtr(&over.MaxRetries)
		case "RETRY_BASE_DELAY_MS":
			err = numPtr(&over.RetryBaseDelayMS)
		case "PAUSE_MS":
			err = numPtr(&over.PauseMS)
		case "MAX_OUTPUT_TOKENS":
			err = numPtr(&over.MaxOutputTokens)
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LLM":
			over.LLM = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = strings.TrimSpace(val)
		case "COMPONENTS_DECODER":
			over.Components.Decoder = strings.TrimSpace(val)
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		default:
			if strings.HasPrefix(key, "PROVIDER__") {
				err = providerEnv(prov, key, val, atoi)
			}
		}
		if err != nil {
			return Blank(), err
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// providerEnv 处理 PROVIDER__name__FIELD；空值不记录，避免清空文件配置。
func providerEnv(prov map[string]Provider, key, val string, num func(*int) error) error {
	parts := strings.SplitN(key, "__", 3)
	if len(parts) != 3 || strings.TrimSpace(parts[1]) == "" {
		return nil
	}
	name, field := strings.TrimSpace(parts[1]), parts[2]
	p := prov[name]
	switch field {
	case "CLIENT":
		if p.Client = strings.TrimSpace(val); p.Client == "" {
			return nil
		}
	case "LIMITS_RPM":
		if err := num(&p.Limits.RPM); err != nil {
			return err
		}
	case "LIMITS_TPM":
		if err := num(&p.Limits.TPM); err != nil {
			return err
		}
	case "LIMITS_MAX_TOKENS_PER_REQ":
		if err := num(&p.Limits.MaxTokensPerReq); err != nil {
			return err
		}
	case "OPTIONS_JSON":
		if strings.TrimSpace(val) == "" {
			return nil
		}
		if !json.Valid([]byte(val)) {
			return fmt.Errorf("config: env %sPROVIDER__%s__OPTIONS_JSON is not valid json: %w", EnvPrefix, name, contract.ErrConfiguration)
		}
		p.Options = json.RawMessage(val)
	default:
		return nil
	}
	prov[name] = p
	return nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
