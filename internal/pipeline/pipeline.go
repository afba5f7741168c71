package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"pagegen/internal/diag"
	"pagegen/internal/limiter"
	"pagegen/internal/prompt"
	"pagegen/internal/rate"
	"pagegen/internal/retry"
	"pagegen/internal/variety"
	"pagegen/pkg/contract"
)

// - 单点协调：限额判定、多样性预留、结果提交均在同一把锁下完成；后端调用在锁外。
// - 分发顺序即输入顺序：并发模式下也由分发循环串行预留，保证限额按输入顺序生效。
// - 取消只在请求之间检查；已分发的后端调用不受取消影响，剩余请求记为跳过。

// Stage 为流水线所处阶段。
type Stage int32

const (
	Idle Stage = iota
	Validating
	Running
	Finalized
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Running:
		return "running"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// ReasonCanceled 为运行取消后剩余请求的跳过原因。
const ReasonCanceled = "run canceled"

// rawLimit 为失败结果保留的原始响应字节数。
const rawLimit = 400

// StrategyResolver 按类型取得请求构建策略。
type StrategyResolver interface {
	Resolve(c contract.Category) (contract.Strategy, error)
}

// Components 聚合运行所需的组件。
type Components struct {
	Reader     contract.Reader
	Splitter   contract.Splitter
	Strategies StrategyResolver
	Backend    contract.BackendClient
	Extractor  contract.Extractor
	Assembler  contract.Assembler
	Writer     contract.Writer
	// Terminal 可选；nil 为 no-op。
	Terminal *diag.Terminal
}

// Settings 运行期配置。
type Settings struct {
	Inputs     []string
	Difficulty string
	// Seed 为空时多样性选择使用时间种子。
	Seed *int64

	MaxTotal int
	Caps     limiter.Caps

	Concurrency int
	// MaxRetries: 每页额外重试次数（>=0），总尝试 MaxRetries+1 次。
	MaxRetries     int
	RetryBaseDelay time.Duration
	// Pause: 相邻两次分发之间的固定间隔。
	Pause time.Duration

	MaxOutputTokens int
	BytesPerToken   int

	// 限流闸门（可选）
	Gate    *rate.Gate
	GateKey rate.LimitKey

	// BackendName 仅用于终端与日志展示。
	BackendName string
	// RetryTimer 可选；测试注入以免真实睡眠。
	RetryTimer backoff.Timer
}

// Result 为一次运行的最终产出：按页码排序的结果与汇总。
type Result struct {
	Pages   []contract.PageResult
	Summary contract.RunSummary
}

// Pipeline 拥有本实例的多样性选择器与限额器；不可并发调用 Run。
type Pipeline struct {
	comp Components
	set  Settings
	log  *diag.Logger

	selector *variety.Selector
	limiter  *limiter.Limiter
	sleep    func(context.Context, time.Duration) error

	stage atomic.Int32
	busy  atomic.Bool

	mu      sync.Mutex
	results []contract.PageResult
	total   int
	done    int
	failed  int
}

// New 校验组件与配置并构造流水线。
func New(comp Components, set Settings, logger *diag.Logger) (*Pipeline, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	if set.Concurrency < 1 {
		set.Concurrency = 1
	}
	set.Difficulty = prompt.NormalizeDifficulty(set.Difficulty)
	return &Pipeline{
		comp:     comp,
		set:      set,
		log:      logger,
		selector: variety.New(set.Seed),
		limiter:  limiter.New(set.MaxTotal, set.Caps),
		sleep:    sleepCtx,
	}, nil
}

func sanity(comp Components, set Settings) error {
	if comp.Strategies == nil || comp.Backend == nil || comp.Extractor == nil {
		return fmt.Errorf("strategies, backend and extractor are required: %w", contract.ErrInvalidArgument)
	}
	if set.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0: %w", contract.ErrInvalidArgument)
	}
	if set.RetryBaseDelay < 0 || set.Pause < 0 {
		return fmt.Errorf("delays must be >= 0: %w", contract.ErrInvalidArgument)
	}
	return nil
}

// Stage 返回当前阶段。
func (p *Pipeline) Stage() Stage { return Stage(p.stage.Load()) }

func (p *Pipeline) setStage(s Stage) { p.stage.Store(int32(s)) }

// Variety 返回多样性选择器的快照（按类型的已用标签）。
func (p *Pipeline) Variety() map[string][]string { return p.selector.Snapshot() }

// Load 通过 Reader 与 Splitter 读取全部输入，按读取顺序重排 Sequence。
func (p *Pipeline) Load(ctx context.Context) ([]contract.PageRequest, error) {
	if p.comp.Reader == nil || p.comp.Splitter == nil {
		return nil, fmt.Errorf("load: reader and splitter are required: %w", contract.ErrInvalidArgument)
	}
	timer := p.log.Start("reader", "load")
	var reqs []contract.PageRequest
	err := p.comp.Reader.Iterate(ctx, p.set.Inputs, func(src contract.SourceID, rc io.ReadCloser) error {
		defer rc.Close()
		rs, err := p.comp.Splitter.Split(ctx, src, rc)
		if err != nil {
			code := diag.Classify(err)
			p.log.ErrorWith("splitter", string(code), "split failed", nil, diag.SourceRef(string(src)))
			diag.IncError("splitter", string(code))
			return fmt.Errorf("split %s: %w", src, err)
		}
		for _, r := range rs {
			r.Sequence = len(reqs)
			reqs = append(reqs, r)
		}
		p.log.DebugStart("splitter", "split", diag.SourceRef(string(src)), map[string]string{"requests": strconv.Itoa(len(rs))})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reader iterate: %w", err)
	}
	timer.Finish("load", int64(len(reqs)))
	diag.IncOp("reader", "finish", "success")
	return reqs, nil
}

// Run 依次处理请求并返回最终结果。
// 空输入返回 Result{Pages: []} 与 ErrValidation，且不改变任何状态。
// 通过校验后清空限额计数与多样性历史。
// ctx 取消时仍完成收尾，返回已收尾的结果与 ctx.Err()。
func (p *Pipeline) Run(ctx context.Context, reqs []contract.PageRequest) (Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("pipeline: run already in progress: %w", contract.ErrInvalidArgument)
	}
	defer p.busy.Store(false)

	prev := p.Stage()
	p.setStage(Validating)
	if len(reqs) == 0 {
		p.setStage(prev)
		p.log.Error("pipeline", string(diag.CodeValidation), "no page requests", nil)
		diag.IncError("pipeline", string(diag.CodeValidation))
		return Result{Pages: []contract.PageResult{}}, fmt.Errorf("pipeline: no page requests: %w", contract.ErrValidation)
	}

	p.limiter.Reset()
	p.selector.ResetAll()
	p.mu.Lock()
	p.results = make([]contract.PageResult, 0, len(reqs))
	p.total, p.done, p.failed = len(reqs), 0, 0
	p.mu.Unlock()

	p.setStage(Running)
	start := time.Now()
	timer := p.log.StartWithKV("pipeline", "run", diag.Ref{}, map[string]string{
		"requests":    strconv.Itoa(len(reqs)),
		"concurrency": strconv.Itoa(p.set.Concurrency),
		"difficulty":  p.set.Difficulty,
	})
	p.comp.Terminal.RunStart(p.set.Concurrency, p.set.BackendName)

	canceled := p.dispatch(ctx, reqs)

	res := p.finalize(time.Since(start), canceled)
	p.setStage(Finalized)
	timer.Finish("run", int64(res.Summary.Succeeded))
	diag.ObserveDuration("pipeline", "run", res.Summary.Elapsed.Milliseconds())
	p.comp.Terminal.RunFinish(res.Summary.Failed == 0 && !canceled, res.Summary.Elapsed)
	if canceled {
		return res, ctx.Err()
	}
	return res, nil
}

// job 为已预留额度、待调用后端的一页。
type job struct {
	req   contract.PageRequest
	strat contract.Strategy
	text  string
	label string
}

// dispatch 按输入顺序预留并调用；返回是否因取消提前结束。
func (p *Pipeline) dispatch(ctx context.Context, reqs []contract.PageRequest) bool {
	bctx := context.WithoutCancel(ctx)
	var g *errgroup.Group
	if p.set.Concurrency > 1 {
		g = new(errgroup.Group)
		g.SetLimit(p.set.Concurrency)
	}
	canceled, called := false, false
	for i, req := range reqs {
		if ctx.Err() != nil {
			p.cancelRest(reqs[i:])
			canceled = true
			break
		}
		j, ok := p.reserve(req)
		if !ok {
			continue
		}
		// 间隔只出现在两次后端调用之间
		if called && p.set.Pause > 0 {
			_ = p.sleep(ctx, p.set.Pause)
		}
		called = true
		if g == nil {
			p.commit(j, p.invoke(bctx, j))
			continue
		}
		g.Go(func() error {
			p.commit(j, p.invoke(bctx, j))
			return nil
		})
	}
	if g != nil {
		_ = g.Wait()
	}
	return canceled
}

// reserve 在协调锁下完成限额判定、策略解析、请求构建与额度预留。
// 返回 false 表示该请求已记为跳过或失败。
func (p *Pipeline) reserve(req contract.PageRequest) (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := diag.PageRef(req.Sequence, req.PageNumber)
	if ok, reason := p.limiter.ShouldProcess(req.Category); !ok {
		p.limiter.TrackSkip(contract.Skip{Sequence: req.Sequence, PageNumber: req.PageNumber, Category: req.Category, Reason: reason})
		p.log.Warn("limiter", "skip", reason, ref, map[string]string{"category": string(req.Category)})
		diag.IncOp("limiter", "skip", "skip")
		return job{}, false
	}

	req.Theme = prompt.SanitizeTheme(req.Theme)
	strat, err := p.comp.Strategies.Resolve(req.Category)
	if err != nil {
		p.failLocked(req, 0, "", err)
		return job{}, false
	}
	cat := req.Category
	var chosen string
	r, err := strat.Build(contract.BuildInput{
		Theme:      req.Theme,
		Difficulty: p.set.Difficulty,
		PageNumber: req.PageNumber,
		History:    p.selector.Used(cat),
		Choose: func(candidates []string) (string, error) {
			l, err := p.selector.Select(cat, candidates)
			if err == nil {
				chosen = l
			}
			return l, err
		},
	})
	if err != nil {
		if chosen != "" {
			p.selector.Release(cat, chosen)
		}
		p.failLocked(req, 0, "", fmt.Errorf("build request: %w", err))
		return job{}, false
	}
	p.limiter.MarkProcessed(cat)
	p.log.DebugStart("pipeline", "dispatch", ref, map[string]string{"category": string(cat), "label": r.Label})
	return job{req: req, strat: strat, text: r.Text, label: r.Label}, true
}

// invoke 在锁外执行限流等待与“请求→解析”重试循环。
func (p *Pipeline) invoke(ctx context.Context, j job) retry.Outcome {
	tokens := prompt.RequestTokens(j.text, p.set.BytesPerToken, p.set.MaxOutputTokens)
	if err := p.set.Gate.Wait(ctx, rate.Ask{Key: p.set.GateKey, Tokens: tokens}); err != nil {
		return retry.Outcome{Err: fmt.Errorf("rate gate: %w", err)}
	}
	ref := diag.PageRef(j.req.Sequence, j.req.PageNumber)
	co := retry.Coordinator{
		MaxAttempts: p.set.MaxRetries,
		BaseDelay:   p.set.RetryBaseDelay,
		Timer:       p.set.RetryTimer,
		OnRetry: func(attempt int, err error, next time.Duration) {
			code := diag.Classify(err)
			p.log.Warn("retry", string(code), "attempt failed", ref, map[string]string{
				"attempt": strconv.Itoa(attempt),
				"next_ms": strconv.FormatInt(next.Milliseconds(), 10),
			})
			diag.IncOp("retry", "retry", "error")
		},
	}
	required := j.strat.Required()
	timer := p.log.StartWith("backend", "generate", ref)
	out := co.Invoke(ctx,
		func(ctx context.Context) (string, error) {
			return p.comp.Backend.Generate(ctx, j.text, p.set.MaxOutputTokens)
		},
		func(raw string) (map[string]any, bool) {
			v, ok := p.comp.Extractor.Extract(raw)
			if !ok || !prompt.HasFields(v, required) {
				return nil, false
			}
			return v, true
		})
	if out.Err == nil {
		timer.Finish("generate", int64(out.Attempts))
	}
	return out
}

// commit 在协调锁下提交结果并结算多样性预留。
func (p *Pipeline) commit(j job, out retry.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cat := j.req.Category
	if out.Err != nil {
		if j.label != "" {
			p.selector.Release(cat, j.label)
		}
		p.failLocked(j.req, out.Attempts, out.Raw, out.Err)
		return
	}

	label := j.label
	if got, ok := j.strat.ExtractSelection(out.Value); ok && got != j.label {
		if j.label != "" {
			p.selector.Release(cat, j.label)
		}
		p.selector.MarkUsed(cat, got)
		label = got
	}
	content := make(map[string]any, len(out.Value)+3)
	content["page_number"] = j.req.PageNumber
	content["category"] = string(cat)
	content["theme"] = j.req.Theme
	for k, v := range out.Value {
		content[k] = v
	}
	p.results = append(p.results, contract.PageResult{
		Sequence:    j.req.Sequence,
		Category:    cat,
		Theme:       j.req.Theme,
		PageNumber:  j.req.PageNumber,
		Label:       label,
		Content:     content,
		Success:     true,
		RawResponse: out.Raw,
		Attempts:    out.Attempts,
	})
	p.done++
	diag.IncOp("pipeline", "page", "success")
	p.comp.Terminal.PageProgress(p.done, p.total, p.failed)
}

// failLocked 记录失败结果；调用方持有 p.mu。
func (p *Pipeline) failLocked(req contract.PageRequest, attempts int, raw string, err error) {
	code := diag.Classify(err)
	if len(raw) > rawLimit {
		raw = raw[:rawLimit]
	}
	p.results = append(p.results, contract.PageResult{
		Sequence:    req.Sequence,
		Category:    req.Category,
		Theme:       req.Theme,
		PageNumber:  req.PageNumber,
		Success:     false,
		Error:       err.Error(),
		ErrorCode:   string(code),
		RawResponse: raw,
		Attempts:    attempts,
	})
	p.done++
	p.failed++
	kv := diag.StatusKV(err)
	if kv == nil {
		kv = map[string]string{}
	}
	kv["category"] = string(req.Category)
	p.log.ErrorWithKV("pipeline", string(code), err.Error(), nil, diag.PageRef(req.Sequence, req.PageNumber), kv)
	diag.IncOp("pipeline", "page", "error")
	diag.IncError("pipeline", string(code))
	p.comp.Terminal.PageProgress(p.done, p.total, p.failed)
}

// cancelRest 将未分发的请求记为跳过。
func (p *Pipeline) cancelRest(rest []contract.PageRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range rest {
		p.limiter.TrackSkip(contract.Skip{Sequence: r.Sequence, PageNumber: r.PageNumber, Category: r.Category, Reason: ReasonCanceled})
	}
	p.log.Warn("pipeline", string(diag.CodeCancel), ReasonCanceled, diag.Ref{}, map[string]string{"remaining": strconv.Itoa(len(rest))})
	diag.IncOp("pipeline", "cancel", "skip")
}

// finalize 排序结果并生成汇总。
func (p *Pipeline) finalize(elapsed time.Duration, canceled bool) Result {
	p.mu.Lock()
	pages := p.results
	p.results = nil
	p.mu.Unlock()

	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].PageNumber != pages[j].PageNumber {
			return pages[i].PageNumber < pages[j].PageNumber
		}
		return pages[i].Sequence < pages[j].Sequence
	})

	ls := p.limiter.Summary()
	sum := contract.RunSummary{
		Total:       len(pages),
		MaxTotal:    ls.MaxTotal,
		PerCategory: ls.PerCategory,
		Limits:      ls.Limits,
		Skipped:     len(ls.Skips),
		Skips:       ls.Skips,
		Failures:    []contract.Failure{},
		Variety:     p.selector.Snapshot(),
		Elapsed:     elapsed,
		Canceled:    canceled,
	}
	if sum.Skips == nil {
		sum.Skips = []contract.Skip{}
	}
	for _, pg := range pages {
		if pg.Success {
			sum.Succeeded++
			continue
		}
		sum.Failed++
		sum.Failures = append(sum.Failures, contract.Failure{
			Sequence:   pg.Sequence,
			PageNumber: pg.PageNumber,
			Category:   pg.Category,
			Code:       pg.ErrorCode,
			Reason:     pg.Error,
		})
	}
	return Result{Pages: pages, Summary: sum}
}

// Emit 通过 Assembler 编码结果并由 Writer 按工件名顺序写出。
func (p *Pipeline) Emit(ctx context.Context, res Result) ([]contract.ArtifactID, error) {
	if p.comp.Assembler == nil || p.comp.Writer == nil {
		return nil, fmt.Errorf("emit: assembler and writer are required: %w", contract.ErrInvalidArgument)
	}
	atimer := p.log.Start("assembler", "assemble")
	arts, err := p.comp.Assembler.Assemble(ctx, res.Pages, res.Summary)
	if err != nil {
		code := diag.Classify(err)
		p.log.Error("assembler", string(code), "assemble failed", atimer.Since())
		diag.IncError("assembler", string(code))
		return nil, fmt.Errorf("assembler assemble: %w", err)
	}
	atimer.Finish("assemble", int64(len(arts)))

	ids := make([]contract.ArtifactID, 0, len(arts))
	for id := range arts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		wtimer := p.log.StartWith("writer", "write", diag.SourceRef(string(id)))
		if err := p.comp.Writer.Write(ctx, id, arts[id]); err != nil {
			code := diag.Classify(err)
			p.log.ErrorWith("writer", string(code), "write failed", wtimer.Since(), diag.SourceRef(string(id)))
			diag.IncError("writer", string(code))
			return nil, fmt.Errorf("writer write %s: %w", id, err)
		}
		wtimer.Finish("write", 1)
		diag.IncOp("writer", "finish", "success")
	}
	return ids, nil
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
