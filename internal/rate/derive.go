package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"

	"pagegen/pkg/contract"
)

// defaultKeyEnv 为各后端未配置 api_key_env 时读取的环境变量。
var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GOOGLE_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// DeriveKey 从后端标识与其原样 Options JSON 中取得 API Key，
// 返回 client:sha256(key) 形式的分组键；离线后端（mock/flaky）使用固定键。
func DeriveKey(client string, raw json.RawMessage) (LimitKey, error) {
	var obj struct {
		APIKey    string `json:"api_key"`
		APIKeyEnv string `json:"api_key_env"`
	}
	if len(raw) > 0 {
		// 其余字段由后端自身严格校验
		_ = json.Unmarshal(raw, &obj)
	}
	key := obj.APIKey
	switch client {
	case "mock", "flaky":
		if key == "" {
			key = "offline"
		}
	default:
		if key == "" {
			env := obj.APIKeyEnv
			if env == "" {
				env = defaultKeyEnv[client]
			}
			if env != "" {
				key = os.Getenv(env)
			}
		}
	}
	if key == "" {
		return "", fmt.Errorf("rate: missing api key for backend %s: %w", client, contract.ErrConfiguration)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:8])), nil
}
