package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "pagegen/internal/config"
	"pagegen/internal/diag"
	"pagegen/internal/limiter"
	"pagegen/internal/pipeline"
	"pagegen/pkg/contract"
)

// 退出码
const (
	exitOK         = 0
	exitRunFailure = 1
	exitValidation = 2
	exitConfig     = 3
)

// exitError 携带退出码穿过 cobra 的 RunE。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type cliFlags struct {
	config      string
	llm         string
	concurrency int
	maxRetries  int
	difficulty  string
	seed        int64
	maxTotal    int
	perCategory string
	status      bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

// execute 解析参数并运行；返回进程退出码。
func execute(args []string, stderr io.Writer) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	root := newRootCmd(stderr)
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	fprintf(stderr, "参数错误: %v\n", err)
	return exitConfig
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	f := &cliFlags{}
	root := &cobra.Command{
		Use:   "pagegen [requests...]",
		Short: "为儿童活动册批量生成页面内容",
		Long: `读取页面请求文件（JSON/JSONL/YAML，或 "-" 表示 STDIN），
按页面类型构造内容请求并调用所配置的后端，输出 pages.json 与 summary.json。`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, f, stderr)
		},
	}
	fl := root.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（.json/.yaml）；缺省读取 ./config.json（若存在）")
	fl.StringVar(&f.llm, "llm", "", "provider 名称（覆盖配置）")
	fl.IntVar(&f.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	fl.IntVar(&f.maxRetries, "max-retries", 0, "每页额外重试次数（覆盖配置；0 表示不重试）")
	fl.StringVar(&f.difficulty, "difficulty", "", "难度 easy|medium|hard（覆盖配置）")
	fl.Int64Var(&f.seed, "seed", 0, "多样性选择的随机种子（覆盖配置）")
	fl.IntVar(&f.maxTotal, "max-total", 0, "总页数上限（覆盖配置；0 表示不限）")
	fl.StringVar(&f.perCategory, "per-category", "", `分类型上限，如 "coloring=2,maze=1"（覆盖配置）`)
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	root.AddCommand(newInitCmd(stderr))
	return root
}

func newInitCmd(stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在指定目录生成 config.json 与 .env 模板（已存在则跳过）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := initConfig(dir, stderr); err != nil {
				fprintf(stderr, "生成默认配置失败: %v\n", err)
				return &exitError{code: exitConfig, err: err}
			}
			return nil
		},
	}
}

func runPipeline(cmd *cobra.Command, roots []string, f *cliFlags, stderr io.Writer) error {
	start := time.Now()
	corrID := uuid.NewString()
	logger := diag.NewLogger(corrID, "info")
	fail := func(code int, what string, err error) error {
		if !errors.Is(err, context.Canceled) {
			fprintf(stderr, "%s: %v\n", what, err)
		}
		logger.Error("pipeline", string(diag.Classify(err)), what, &start)
		return &exitError{code: code, err: err}
	}

	defer func() {
		logger.DebugStart("metrics", "snapshot", diag.Ref{}, diag.MetricsSnapshot().KV())
		_ = logger.Close()
	}()

	cfg, err := resolveConfig(cmd, roots, f)
	if err != nil {
		return fail(exitConfig, "配置解析失败", err)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(stderr, cfg)
		return fail(exitConfig, "配置校验失败", err)
	}

	// 使用最终配置中的日志级别重建 logger
	_ = logger.Close()
	logger = diag.NewLogger(corrID, cfg.Logging.Level)

	if err := preflightCheckOutputDir(cfg); err != nil {
		return fail(exitConfig, "输出目录不可写或无法创建", err)
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return fail(exitConfig, "装配失败", err)
	}
	comp.Terminal = diag.NewTerminal(stderr, f.status)
	logger.DebugStart("config", "effective", diag.Ref{}, effectiveKV(cfg))

	p, err := pipeline.New(comp, set, logger)
	if err != nil {
		return fail(exitConfig, "装配失败", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reqs, err := p.Load(ctx)
	if err != nil {
		return fail(exitCodeFor(err), "读取请求失败", err)
	}
	res, runErr := p.Run(ctx, reqs)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fail(exitCodeFor(runErr), "运行失败", runErr)
	}

	// 取消时仍写出已收尾的部分结果。
	ids, err := p.Emit(context.WithoutCancel(ctx), res)
	if err != nil {
		return fail(exitRunFailure, "写出失败", err)
	}
	logger.DebugStart("pipeline", "artifacts", diag.Ref{}, map[string]string{
		"artifacts": joinIDs(ids),
		"failed":    strconv.Itoa(res.Summary.Failed),
		"skipped":   strconv.Itoa(res.Summary.Skipped),
	})
	if runErr != nil {
		return fail(exitRunFailure, "运行已取消", runErr)
	}
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	return nil
}

// resolveConfig 按 默认值 < 配置文件 < ENV < CLI 的优先级合并配置。
func resolveConfig(cmd *cobra.Command, roots []string, f *cliFlags) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	path := strings.TrimSpace(f.config)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE"))
	}
	if path == "" {
		for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
			if st, err := os.Stat(name); err == nil && !st.IsDir() {
				path = name
				break
			}
		}
	}
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)
	return cfgpkg.Merge(cfg, flagOverlay(cmd, roots, f)), nil
}

// flagOverlay 只收集显式设置过的旗标。
func flagOverlay(cmd *cobra.Command, roots []string, f *cliFlags) cfgpkg.Config {
	over := cfgpkg.Blank()
	set := cmd.Flags().Changed
	if set("llm") {
		over.LLM = f.llm
	}
	if set("concurrency") {
		over.Concurrency = cfgpkg.Int(f.concurrency)
	}
	if set("max-retries") {
		over.MaxRetries = cfgpkg.Int(f.maxRetries)
	}
	if set("difficulty") {
		over.Difficulty = f.difficulty
	}
	if set("seed") {
		s := f.seed
		over.Seed = &s
	}
	if set("max-total") {
		over.MaxTotalPages = cfgpkg.Int(f.maxTotal)
	}
	if set("per-category") {
		over.PagesPerCategory = limiter.ParseCaps(f.perCategory)
	}
	if len(roots) > 0 {
		over.Inputs = roots
	}
	return over
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, contract.ErrValidation):
		return exitValidation
	case errors.Is(err, contract.ErrConfiguration), errors.Is(err, contract.ErrInvalidArgument):
		return exitConfig
	default:
		return exitRunFailure
	}
}

// effectiveKV 提取运行期配置的关键项（不含密钥）。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	kv := map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"concurrency":  strconv.Itoa(cfgpkg.IntValue(cfg.Concurrency)),
		"max_retries":  strconv.Itoa(cfgpkg.IntValue(cfg.MaxRetries)),
		"max_total":    strconv.Itoa(cfgpkg.IntValue(cfg.MaxTotalPages)),
		"per_category": cfg.PagesPerCategory.String(),
		"difficulty":   cfg.Difficulty,
		"llm":          cfg.LLM,
		"reader":       cfg.Components.Reader,
		"splitter":     cfg.Components.Splitter,
		"decoder":      cfg.Components.Decoder,
		"assembler":    cfg.Components.Assembler,
		"writer":       cfg.Components.Writer,
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		var s struct {
			BaseURL string `json:"base_url"`
			Model   string `json:"model"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
	}
	return kv
}

func joinIDs(ids []contract.ArtifactID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "有效配置:\n%s\n", b)
	return err
}

// initConfig 生成 config.json 与 .env 模板；已存在的文件保持不变。
func initConfig(dir string, stderr io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfgpkg.DefaultTemplateConfig(), "", "  ")
	if err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		body []byte
	}{
		{"config.json", append(b, '\n')},
		{".env", []byte(dotEnvTemplate())},
	} {
		path := filepath.Join(dir, f.name)
		created, err := writeNew(path, f.body)
		if err != nil {
			return err
		}
		if !created {
			fprintf(stderr, "已存在，跳过: %s\n", path)
		}
	}
	return nil
}

// writeNew 仅在目标不存在时创建文件。
func writeNew(path string, body []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

func dotEnvTemplate() string {
	p := cfgpkg.EnvPrefix
	var b strings.Builder
	b.WriteString("# pagegen .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源\n")
	b.WriteString(p + "CONFIG_FILE=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{
		"INPUTS", "DIFFICULTY", "SEED", "MAX_TOTAL_PAGES", "PAGES_PER_CATEGORY", "CONCURRENCY",
		"MAX_RETRIES", "RETRY_BASE_DELAY_MS", "PAUSE_MS", "MAX_OUTPUT_TOKENS", "LOG_LEVEL", "LLM",
	} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"READER", "SPLITTER", "DECODER", "ASSEMBLER", "WRITER"} {
		b.WriteString(p + "COMPONENTS_" + k + "=\n")
	}
	for _, name := range []string{"openai", "gemini", "anthropic"} {
		fmt.Fprintf(&b, "\n# Provider 覆盖（%s）\n", name)
		for _, k := range []string{"CLIENT", "LIMITS_RPM", "LIMITS_TPM", "LIMITS_MAX_TOKENS_PER_REQ", "OPTIONS_JSON"} {
			fmt.Fprintf(&b, "%sPROVIDER__%s__%s=\n", p, name, k)
		}
	}
	b.WriteString("\n# 常见供应商 API Key\n")
	b.WriteString("OPENAI_API_KEY=\n")
	b.WriteString("GOOGLE_API_KEY=\n")
	b.WriteString("ANTHROPIC_API_KEY=\n")
	return b.String()
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 跳过空行与 # 注释；支持 "export " 前缀；成对引号被剥离，双引号内处理常见转义。
// 空值与已存在的环境变量均不写入。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" {
			continue
		}
		if len(val) >= 2 {
			q := val[0]
			if (q == '\'' || q == '"') && val[len(val)-1] == q {
				val = val[1 : len(val)-1]
				if q == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if val == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 目录存在时尝试创建临时文件；不存在时检查父目录可写。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	writerName := strings.TrimSpace(cfg.Components.Writer)
	if writerName == "" {
		writerName = cfgpkg.Defaults().Components.Writer
	}
	if writerName != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 交由装配阶段报错
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		tf, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := tf.Name()
		_ = tf.Close()
		_ = os.Remove(name)
		return nil
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s: %w", dir, contract.ErrPathInvalid)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s: %w", parent, contract.ErrPathInvalid)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
