package limiter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"pagegen/pkg/contract"
)

// UnknownBucket 为空/无法识别类型的共享计数桶。
const UnknownBucket = "__unknown__"

// Limiter 执行总量上限与分类型上限。
// 检查顺序固定：先总量，后类型。
type Limiter struct {
	maxTotal int
	caps     Caps

	mu     sync.Mutex
	total  int
	counts map[string]int
	skips  []contract.Skip
}

// New 构造 Limiter。maxTotal<=0 表示不限总量；caps 中未出现的类型不限额。
func New(maxTotal int, caps Caps) *Limiter {
	norm := make(Caps, len(caps))
	for k, v := range caps {
		if v > 0 {
			norm[Key(k)] = v
		}
	}
	return &Limiter{maxTotal: maxTotal, caps: norm, counts: make(map[string]int)}
}

// Key 归一化类型键：已知类型及其别名映射到规范名，其余（含空值）落入 UnknownBucket。
func Key(cat string) string {
	if c, ok := contract.ParseCategory(cat); ok {
		return string(c)
	}
	return UnknownBucket
}

// ShouldProcess 判断该类型是否还有额度；拒绝时给出原因。
func (l *Limiter) ShouldProcess(cat contract.Category) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return false, fmt.Sprintf("Total limit %d reached", l.maxTotal)
	}
	k := Key(string(cat))
	if c, ok := l.caps[k]; ok && l.counts[k] >= c {
		return false, fmt.Sprintf("Category limit %d reached for '%s'", c, k)
	}
	return true, ""
}

// MarkProcessed 同时累加总量与类型计数。
func (l *Limiter) MarkProcessed(cat contract.Category) {
	l.mu.Lock()
	l.total++
	l.counts[Key(string(cat))]++
	l.mu.Unlock()
}

// TrackSkip 记录一次跳过。
func (l *Limiter) TrackSkip(s contract.Skip) {
	l.mu.Lock()
	l.skips = append(l.skips, s)
	l.mu.Unlock()
}

// Reset 清空计数与跳过记录；上限保持不变。
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.total = 0
	l.counts = make(map[string]int)
	l.skips = nil
	l.mu.Unlock()
}

// Summary: 计数快照。
type Summary struct {
	Total       int
	MaxTotal    int
	PerCategory map[string]int
	Limits      map[string]int
	Skips       []contract.Skip
}

// Summary 返回当前状态的副本。
func (l *Limiter) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	per := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		per[k] = v
	}
	lim := make(map[string]int, len(l.caps))
	for k, v := range l.caps {
		lim[k] = v
	}
	return Summary{
		Total:       l.total,
		MaxTotal:    l.maxTotal,
		PerCategory: per,
		Limits:      lim,
		Skips:       append([]contract.Skip(nil), l.skips...),
	}
}

// String 便于日志输出：k=v,k=v（键有序）。
func (c Caps) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c[k]))
	}
	return strings.Join(parts, ",")
}
