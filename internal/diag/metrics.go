package diag

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// 进程内计数器：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）
var metrics = struct {
	sync.Mutex
	ops    map[string]int64
	errs   map[string]int64
	durMS  map[string]int64
	nObsvd map[string]int64
}{
	ops:    map[string]int64{},
	errs:   map[string]int64{},
	durMS:  map[string]int64{},
	nObsvd: map[string]int64{},
}

func key(parts ...string) string { return strings.Join(parts, "/") }

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	metrics.Lock()
	metrics.ops[key(comp, stage, result)]++
	metrics.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metrics.Lock()
	metrics.errs[key(comp, code)]++
	metrics.Unlock()
}

// ObserveDuration 累计阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metrics.Lock()
	metrics.durMS[key(comp, stage)] += durMS
	metrics.nObsvd[key(comp, stage)]++
	metrics.Unlock()
}

// Metrics 为计数器快照。
type Metrics struct {
	Ops        map[string]int64
	Errors     map[string]int64
	DurationMS map[string]int64
}

func clone(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetricsSnapshot 返回当前计数器副本。
func MetricsSnapshot() Metrics {
	metrics.Lock()
	defer metrics.Unlock()
	return Metrics{Ops: clone(metrics.ops), Errors: clone(metrics.errs), DurationMS: clone(metrics.durMS)}
}

// ResetMetrics 清零全部计数器。
func ResetMetrics() {
	metrics.Lock()
	defer metrics.Unlock()
	metrics.ops = map[string]int64{}
	metrics.errs = map[string]int64{}
	metrics.durMS = map[string]int64{}
	metrics.nObsvd = map[string]int64{}
}

// KV 将快照展平为日志键值（op.*、error.*、dur_ms.*）。
func (m Metrics) KV() map[string]string {
	out := make(map[string]string, len(m.Ops)+len(m.Errors)+len(m.DurationMS))
	put := func(prefix string, src map[string]int64) {
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[prefix+k] = strconv.FormatInt(src[k], 10)
		}
	}
	put("op.", m.Ops)
	put("error.", m.Errors)
	put("dur_ms.", m.DurationMS)
	return out
}
