package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/diversifier/internal/api/handlers"
	"github.com/wonny/diversifier/internal/scheduler"
	"github.com/wonny/diversifier/internal/scheduler/jobs"
	"github.com/wonny/diversifier/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작 (Ctrl+C로 종료)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Jobs:
  price_sync              - upstream → postgres 가격 동기화 (PRICE_URL_TEMPLATE + DATABASE_URL)
  price_cache_refresh     - Redis 가격 캐시 무효화 (REDIS_ENABLED)
  portfolio_rebuild       - 포트폴리오 재구성
  walkforward_validation  - walk-forward 검증

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run portfolio_rebuild`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newRunStore builds the store the API serves from and the jobs publish to
func newRunStore(rt *runtime) *handlers.RunStore {
	var cache *redis.Cache
	if rt.redis.Enabled() {
		cache = redis.NewCache(rt.redis, "diversifier")
	}
	var repo handlers.RecordLoader
	if rt.runRepo != nil {
		repo = rt.runRepo
	}
	return handlers.NewRunStore(cache, repo, rt.log)
}

// buildScheduler registers every job the runtime can support
// ⭐ SSOT: 스케줄 작업 등록은 여기서만
func buildScheduler(rt *runtime, store *handlers.RunStore) (*scheduler.Scheduler, *jobs.PortfolioRebuildJob, error) {
	sched := scheduler.New(scheduler.DefaultOptions(), rt.log)

	if rt.upstream != nil && rt.priceRepo != nil {
		priceSync := jobs.NewPriceSyncJob(rt.cfg.PriceSyncSchedule, rt.upstream, rt.priceRepo, rt.universe, rt.strategy.Market.LoadWorkers, rt.log)
		if err := sched.AddJob(priceSync); err != nil {
			return nil, nil, err
		}
	}
	if rt.cache != nil {
		refresh := jobs.NewCacheRefreshJob(rt.cfg.CacheRefreshSchedule, rt.cache, rt.universe, rt.log)
		if err := sched.AddJob(refresh); err != nil {
			return nil, nil, err
		}
	}

	pipeline, err := rt.pipeline()
	if err != nil {
		return nil, nil, err
	}
	rebuild, err := jobs.NewPortfolioRebuildJob(jobs.RebuildConfig{
		Schedule:  rt.cfg.RebuildSchedule,
		Pipeline:  pipeline,
		Provider:  rt.provider,
		Universe:  rt.universe,
		Snapshot:  rt.snapshot,
		Publisher: store,
		Saver:     rt.runSaver(),
	}, rt.log)
	if err != nil {
		return nil, nil, err
	}
	if err := sched.AddJob(rebuild); err != nil {
		return nil, nil, err
	}

	validator, err := rt.validator()
	if err != nil {
		return nil, nil, err
	}
	var saver jobs.ReportSaver
	if rt.runRepo != nil {
		saver = rt.runRepo
	}
	validation, err := jobs.NewWalkForwardJob(jobs.ValidationConfig{
		Schedule:   rt.cfg.WalkForwardSchedule,
		Validator:  validator,
		Provider:   rt.provider,
		Universe:   rt.universe,
		Cutoffs:    rt.strategy.Cutoffs,
		Publisher:  store,
		Saver:      saver,
		StrategyID: rt.snapshot.StrategyID,
		ConfigHash: rt.snapshot.ConfigHash,
	}, rt.log)
	if err != nil {
		return nil, nil, err
	}
	if err := sched.AddJob(validation); err != nil {
		return nil, nil, err
	}

	return sched, rebuild, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := ensureRunSchema(ctx, rt); err != nil {
		return err
	}

	sched, _, err := buildScheduler(rt, newRunStore(rt))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	fmt.Println("✅ Scheduler started")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, _, err := buildScheduler(rt, newRunStore(rt))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := ensureRunSchema(ctx, rt); err != nil {
		return err
	}

	sched, _, err := buildScheduler(rt, newRunStore(rt))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Ctrl+C cancels the job through the scheduler context
	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	fmt.Printf("Running job: %s\n", args[0])
	result, err := sched.RunAndWait(args[0])
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempt(s): %s", result.JobName, result.Attempts, result.Error)
	}
	fmt.Printf("✅ %s completed in %s\n", result.JobName, result.Duration.Round(time.Millisecond))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Registered jobs:")
	for _, name := range names {
		stat := stats[name]
		next := "-"
		if stat.NextRun != nil {
			next = stat.NextRun.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  - %-24s %-18s next: %s\n", name, stat.Schedule, next)
	}
}

func ensureRunSchema(ctx context.Context, rt *runtime) error {
	if rt.runRepo == nil {
		return nil
	}
	return rt.runRepo.EnsureSchema(ctx)
}
