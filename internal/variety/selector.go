package variety

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"pagegen/pkg/contract"
)

// Selector 记录每个类型本次运行已选过的标签，并从未使用的候选中随机选取。
// 并发安全；由 pipeline 实例持有。
type Selector struct {
	mu   sync.Mutex
	rng  *rand.Rand
	used map[contract.Category][]string
}

// New 构造 Selector。seed 为 nil 时使用当前时间。
func New(seed *int64) *Selector {
	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	return &Selector{
		rng:  rand.New(rand.NewSource(s)),
		used: make(map[contract.Category][]string),
	}
}

// Select 返回一个尚未使用的候选并记入历史。
// 候选全部用尽时先清空该类型历史，再从全集中选。
func (s *Selector) Select(cat contract.Category, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("variety: select %s: empty candidates: %w", cat, contract.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := s.unusedLocked(cat, candidates)
	if len(eligible) == 0 {
		delete(s.used, cat)
		eligible = candidates
	}
	pick := eligible[s.rng.Intn(len(eligible))]
	s.used[cat] = append(s.used[cat], pick)
	return pick, nil
}

func (s *Selector) unusedLocked(cat contract.Category, candidates []string) []string {
	seen := make(map[string]struct{}, len(s.used[cat]))
	for _, u := range s.used[cat] {
		seen[u] = struct{}{}
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// MarkUsed 追加标签（允许重复）。
func (s *Selector) MarkUsed(cat contract.Category, label string) {
	s.mu.Lock()
	s.used[cat] = append(s.used[cat], label)
	s.mu.Unlock()
}

// Release 移除最近一次出现的标签；不存在时为 no-op。
func (s *Selector) Release(cat contract.Category, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.used[cat]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i] == label {
			s.used[cat] = append(h[:i:i], h[i+1:]...)
			return
		}
	}
}

// Reset 清空单个类型的历史。
func (s *Selector) Reset(cat contract.Category) {
	s.mu.Lock()
	delete(s.used, cat)
	s.mu.Unlock()
}

// ResetAll 清空全部历史。
func (s *Selector) ResetAll() {
	s.mu.Lock()
	s.used = make(map[contract.Category][]string)
	s.mu.Unlock()
}

// Used 返回该类型历史的副本。
func (s *Selector) Used(cat contract.Category) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.used[cat]...)
}

// Snapshot 返回全部非空历史（键为类型字符串，便于序列化）。
func (s *Selector) Snapshot() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.used))
	for c, h := range s.used {
		if len(h) > 0 {
			keys = append(keys, string(c))
		}
	}
	sort.Strings(keys)
	out := make(map[string][]string, len(keys))
	for _, k := range keys {
		out[k] = append([]string(nil), s.used[contract.Category(k)]...)
	}
	return out
}
