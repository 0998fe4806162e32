package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"KisTrader/internal/model"
	"KisTrader/internal/notifier"
	"KisTrader/internal/recorder"
)

// Engine is what the scheduler drives.
type Engine interface {
	RunCycle(ctx context.Context) *model.CycleReport
	CheckToken(ctx context.Context) bool
	Balance(ctx context.Context) (*model.Balance, error)
}

const helpText = "사용 가능한 명령:\n• /test 토큰 확인\n• /balance 잔고 조회\n• /history 최근 실행 기록\n• /exit 봇 종료\n\n" +
	"/test, /balance 처리 중 도래한 자동 주기는 SKIPPED로 건너뛰고 다음 주기에 다시 실행됩니다."

// Scheduler fires the engine's decision cycle on a cron spec.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   Engine
	Recorder recorder.Recorder
	Location *time.Location
	Ctx      context.Context

	stopOnce sync.Once
	exit     chan struct{}

	// manual cycles started by RunNow; Stop waits for them like cron jobs
	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// NewScheduler creates a new Scheduler. Overlapping ticks are dropped while a cycle runs.
func NewScheduler(ctx context.Context, eng Engine, rec recorder.Recorder, loc *time.Location) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		Cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		Engine:   eng,
		Recorder: rec,
		Location: loc,
		Ctx:      ctx,
		exit:     make(chan struct{}),
	}
}

// Register adds the cycle task under spec, e.g. "@every 10m".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.cycleTask); err != nil {
		return fmt.Errorf("register cycle task %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops scheduling and waits for in-flight cycles, scheduled or manual, to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	<-s.Cron.Stop().Done()
	s.inflight.Wait()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes one cycle immediately on the caller's goroutine. After Stop it
// returns a SKIPPED report without touching the engine.
func (s *Scheduler) RunNow() *model.CycleReport {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		log.Println("[INFO] manual cycle ignored: scheduler stopped")
		return &model.CycleReport{Outcome: model.OutcomeSkipped}
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	return s.Engine.RunCycle(s.Ctx)
}

// Exit is closed when an operator asks the bot to shut down.
func (s *Scheduler) Exit() <-chan struct{} {
	return s.exit
}

func (s *Scheduler) cycleTask() {
	report := s.Engine.RunCycle(s.Ctx)
	log.Printf("[INFO] cycle %s finished: %s", report.RunID, report.Outcome)
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/test":
		return notifier.FormatTokenCheck(s.Engine.CheckToken(ctx))
	case "/balance":
		bal, err := s.Engine.Balance(ctx)
		if err != nil {
			log.Printf("[ERROR] manual balance: %v", err)
			return fmt.Sprintf("❌ 잔고 조회 실패: %v", err)
		}
		return notifier.FormatBalance(bal)
	case "/history":
		rows, err := s.Recorder.RecentCycles(10)
		if err != nil {
			log.Printf("[ERROR] recent cycles: %v", err)
			return fmt.Sprintf("❌ 기록 조회 실패: %v", err)
		}
		return notifier.FormatRecentCycles(rows, s.Location)
	case "/exit":
		s.stopOnce.Do(func() { close(s.exit) })
		return "👋 봇을 종료합니다"
	default:
		return helpText
	}
}
