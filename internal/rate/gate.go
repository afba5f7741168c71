package rate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"pagegen/pkg/contract"
)

// LimitKey 为限流分组键：同一后端 + 同一 API Key 共享额度。
type LimitKey string

// Limits 为每分组的限额。0 表示该维度不启用。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}

// Ask 为一次页面请求的放行申请。
type Ask struct {
	Key    LimitKey
	Tokens int // 输入估算 + 输出上限
}

// Gate 为按分组的双桶（请求数/令牌数）闸门，并发安全。
// 未配置的分组不限额。
type Gate struct {
	clk   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu sync.Mutex
	m  map[LimitKey]*pair
}

type pair struct {
	lim Limits
	req bucket
	tok bucket
}

// NewGate 从静态配置构造闸门；clk 为空则使用 time.Now。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &Gate{clk: clk, sleep: sleepCtx, m: make(map[LimitKey]*pair, len(m))}
	now := clk()
	for k, lim := range m {
		g.m[k] = &pair{lim: lim, req: newBucket(lim.RPM, now), tok: newBucket(lim.TPM, now)}
	}
	return g
}

// Wait 阻塞直到分组额度足够或 ctx 结束。
// 单次申请超出 MaxTokensPerReq 或超过 TPM 总容量时立即失败（永远无法放行）。
func (g *Gate) Wait(ctx context.Context, a Ask) error {
	if g == nil {
		return nil
	}
	if a.Tokens < 0 {
		return fmt.Errorf("rate: negative tokens: %w", contract.ErrInvalidArgument)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := g.reserve(a)
		if err != nil || d == 0 {
			return err
		}
		if err := g.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// reserve 尝试扣减额度；不足时返回需等待的时长。
func (g *Gate) reserve(a Ask) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.m[a.Key]
	if p == nil {
		return 0, nil
	}
	if p.lim.MaxTokensPerReq > 0 && a.Tokens > p.lim.MaxTokensPerReq {
		return 0, fmt.Errorf("rate: request needs %d tokens, per-request limit %d: %w",
			a.Tokens, p.lim.MaxTokensPerReq, contract.ErrConfiguration)
	}
	if p.tok.enabled() && a.Tokens > p.tok.cap {
		return 0, fmt.Errorf("rate: request needs %d tokens, tpm %d: %w", a.Tokens, p.tok.cap, contract.ErrConfiguration)
	}
	now := g.clk()
	p.req.refill(now)
	p.tok.refill(now)
	wait := math.Max(p.req.deficit(1), p.tok.deficit(a.Tokens))
	if wait <= 0 {
		p.req.take(1)
		p.tok.take(a.Tokens)
		return 0, nil
	}
	const minSleep = 10 * time.Millisecond
	d := time.Duration(wait * float64(time.Second))
	if d < minSleep {
		d = minSleep
	}
	return d, nil
}

// Available 返回分组当前可用的请求数与令牌数（向下取整，仅诊断）。
// 未配置的分组返回 -1。
func (g *Gate) Available(key LimitKey) (req, tok int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.m[key]
	if p == nil {
		return -1, -1
	}
	now := g.clk()
	p.req.refill(now)
	p.tok.refill(now)
	return p.req.avail(), p.tok.avail()
}

// bucket 为按分钟匀速回填的令牌桶。
type bucket struct {
	cap   int
	level float64
	rate  float64 // 每秒
	last  time.Time
}

func newBucket(perMinute int, now time.Time) bucket {
	if perMinute <= 0 {
		return bucket{}
	}
	return bucket{cap: perMinute, level: float64(perMinute), rate: float64(perMinute) / 60.0, last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() || !now.After(b.last) {
		return
	}
	b.level = math.Min(float64(b.cap), b.level+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
}

// deficit 返回凑够 n 所需的秒数；0 表示可立即扣减。
func (b *bucket) deficit(n int) float64 {
	if !b.enabled() || n <= 0 {
		return 0
	}
	miss := float64(n) - b.level
	if miss <= 0 {
		return 0
	}
	return miss / b.rate
}

func (b *bucket) take(n int) {
	if !b.enabled() || n <= 0 {
		return
	}
	b.level = math.Max(0, b.level-float64(n))
}

func (b *bucket) avail() int {
	if !b.enabled() {
		return -1
	}
	return int(b.level)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
