package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"pagegen/pkg/contract"
	booklet "pagegen/plugins/assembler/booklet"
	dlen "pagegen/plugins/decoder/lenient"
	dstr "pagegen/plugins/decoder/strict"
	anth "pagegen/plugins/llmclient/anthropic"
	flaky "pagegen/plugins/llmclient/flaky"
	gmi "pagegen/plugins/llmclient/gemini"
	mock "pagegen/plugins/llmclient/mock"
	oai "pagegen/plugins/llmclient/openai"
	rfs "pagegen/plugins/reader/filesystem"
	sreq "pagegen/plugins/splitter/requests"
	"pagegen/plugins/strategy/coloring"
	"pagegen/plugins/strategy/connectdots"
	"pagegen/plugins/strategy/counting"
	"pagegen/plugins/strategy/matching"
	"pagegen/plugins/strategy/maze"
	"pagegen/plugins/strategy/tracing"
	wfs "pagegen/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%v: %w", err, contract.ErrConfiguration)
	}
	return nil
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewDecoder 工厂签名：构造 ResponseExtractor。
type NewDecoder func(raw json.RawMessage) (contract.Extractor, error)

// NewLLMClient 工厂签名：构造 BackendClient。
type NewLLMClient func(raw json.RawMessage) (contract.BackendClient, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// requests: JSON/JSONL/YAML 请求文件
	"requests": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts sreq.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sreq.New(&opts)
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// lenient: 去围栏、取花括号区间、修尾逗号
	"lenient": dlen.New,
	// strict: 整段必须是一个 JSON 对象
	"strict": dstr.New,
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai":    oai.New,
	"gemini":    gmi.New,
	"anthropic": anth.New,
	"mock":      mock.New,
	"flaky":     flaky.New,
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// json/jsonl: 页面数组或逐行页面 + summary.json
	"json": booklet.New,
	"jsonl": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts booklet.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		opts.Format = "jsonl"
		b, _ := json.Marshal(opts)
		return booklet.New(b)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换/覆盖可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// StrategyTable 将页面类型映射到请求策略；只增不改。
type StrategyTable struct {
	mu sync.RWMutex
	m  map[contract.Category]contract.Strategy
}

// Strategies 返回包含六种内置类型的新表。
func Strategies() *StrategyTable {
	t := &StrategyTable{m: make(map[contract.Category]contract.Strategy)}
	for _, s := range []contract.Strategy{
		coloring.New(), tracing.New(), counting.New(),
		maze.New(), matching.New(), connectdots.New(),
	} {
		_ = t.Register(s)
	}
	return t
}

// Register 登记新类型；已存在的类型不可覆盖。
func (t *StrategyTable) Register(s contract.Strategy) error {
	if s == nil || s.Category() == "" {
		return fmt.Errorf("register strategy: %w", contract.ErrInvalidArgument)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.m[s.Category()]; dup {
		return fmt.Errorf("strategy %q already registered: %w", s.Category(), contract.ErrConfiguration)
	}
	t.m[s.Category()] = s
	return nil
}

// Resolve 查找类型对应策略；未知类型返回 ErrConfiguration。
func (t *StrategyTable) Resolve(c contract.Category) (contract.Strategy, error) {
	t.mu.RLock()
	s, ok := t.m[c]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown page type %q: %w", c, contract.ErrConfiguration)
	}
	return s, nil
}

// Categories 返回已登记的类型（按内置顺序在前、其余按字典序）。
func (t *StrategyTable) Categories() []contract.Category {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]contract.Category, 0, len(t.m))
	seen := make(map[contract.Category]bool, len(t.m))
	for _, c := range contract.Categories() {
		if _, ok := t.m[c]; ok {
			out = append(out, c)
			seen[c] = true
		}
	}
	var extra []contract.Category
	for c := range t.m {
		if !seen[c] {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
