package config

import (
	"encoding/json"

	"pagegen/internal/limiter"
)

// DefaultTemplateConfig 返回一个"可运行"的默认配置模板：
// - 使用离线 mock 后端与合理限额；
// - 默认输入为 STDIN（"-"），Writer 输出到 ./out 目录；
// - 列出全部内置后端的选项键，值可为空/默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Inputs = []string{"-"}
	cfg.PagesPerCategory = limiter.Caps{}
	cfg.LLM = "mock"
	cfg.Provider = map[string]Provider{
		"mock": {
			Client:  "mock",
			Options: json.RawMessage(`{"response_mode":"","api_key":""}`),
		},
		"flaky": {
			Client:  "flaky",
			Options: json.RawMessage(`{"log_path":""}`),
		},
		"openai": {
			Client: "openai",
			Options: json.RawMessage(`{
  "base_url": "",
  "model": "gpt-4.1-mini",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "timeout_seconds": 120,
  "extra_headers": {}
}`),
		},
		"gemini": {
			Client: "gemini",
			Options: json.RawMessage(`{
  "base_url": "",
  "model": "gemini-2.5-flash",
  "api_key_env": "GOOGLE_API_KEY",
  "api_key": "",
  "timeout_seconds": 120,
  "response_mime_type": "application/json"
}`),
		},
		"anthropic": {
			Client: "anthropic",
			Options: json.RawMessage(`{
  "base_url": "",
  "model": "claude-3-5-sonnet-20241022",
  "api_key_env": "ANTHROPIC_API_KEY",
  "api_key": "",
  "timeout_seconds": 120,
  "max_tokens": 768,
  "extra_headers": {}
}`),
		},
	}
	for name, p := range cfg.Provider {
		if name != "mock" && name != "flaky" {
			p.Limits.RPM = 50
			p.Limits.TPM = 40000
			cfg.Provider[name] = p
		}
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "extensions": [".json", ".jsonl", ".yaml", ".yml"]
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "format": "auto",
  "default_theme": ""
}`)
	cfg.Options.Decoder = json.RawMessage(`{}`)
	cfg.Options.Assembler = json.RawMessage(`{
  "format": "json",
  "name": "pages",
  "compact": false,
  "keep_raw": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": true,
  "overwrite": true,
  "buf_size": 65536
}`)
	return cfg
}
