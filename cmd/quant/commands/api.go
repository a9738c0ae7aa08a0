package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/diversifier/internal/api"
	"github.com/wonny/diversifier/internal/api/handlers"
	"github.com/wonny/diversifier/pkg/metrics"
	"github.com/wonny/diversifier/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 최신 포트폴리오/가중치/상관관계 조회 엔드포인트 제공
- 금액 기준 주식 수 배분 제공
- 포트폴리오 재구성 트리거 제공

Endpoints:
  GET  /health                        - Health check
  GET  /metrics                       - Prometheus metrics
  GET  /api/portfolio?amount=&weights= - 최신 포트폴리오 + 배분
  GET  /api/portfolio/weights?name=   - 가중치 벡터
  GET  /api/bench                     - 미달 종목 대기열
  GET  /api/correlations?threshold=   - 편입 종목 상관관계
  GET  /api/walkforward               - 최신 walk-forward 리포트
  POST /api/runs                      - 즉시 재구성

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080 --scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiScheduler bool
	apiWarm      bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default $PORT)")
	apiCmd.Flags().BoolVar(&apiScheduler, "scheduler", false, "스케줄러 함께 실행 (or SCHEDULER_ENABLED=true)")
	apiCmd.Flags().BoolVar(&apiWarm, "warm", true, "시작 시 포트폴리오 1회 구성")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if apiPort != "" {
		rt.cfg.Port = apiPort
	}
	if err := ensureRunSchema(ctx, rt); err != nil {
		return err
	}

	store := newRunStore(rt)
	sched, rebuild, err := buildScheduler(rt, store)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	var recorder *metrics.Recorder
	if rt.cfg.MetricsEnabled {
		recorder = rt.recorder
	}
	var limiter api.Limiter
	if rt.redis.Enabled() {
		limiter = redis.NewRateLimiter(rt.redis, "diversifier")
	}

	router := api.NewRouter(api.Handlers{
		Portfolio:   handlers.NewPortfolioHandler(store, rt.log),
		WalkForward: handlers.NewWalkForwardHandler(store, rt.log),
		Runs:        handlers.NewRunHandler(rebuild, rt.log),
	}, recorder, limiter, rt.log)

	if apiScheduler || rt.cfg.SchedulerEnabled {
		sched.Start()
		defer sched.Stop()
		printJobs(sched)
	}

	if apiWarm {
		go func() {
			if _, err := rebuild.Rebuild(ctx); err != nil {
				rt.log.WithError(err).Warn("Initial portfolio build failed")
			}
		}()
	}

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", rt.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	return api.New(rt.cfg, rt.log, router).Run(ctx)
}
