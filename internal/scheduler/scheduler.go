package scheduler

import (
	"context"

	"golang-ibov-predictor/internal/config"
	"golang-ibov-predictor/internal/service"
	"golang-ibov-predictor/pkg/logger"
	"golang-ibov-predictor/pkg/telegram"
	"golang-ibov-predictor/pkg/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the daily collection job: scrape today's composition and,
// when configured, immediately rebuild the refined dataset.
type Scheduler struct {
	cfg      config.Scheduler
	cron     *cron.Cron
	scraper  service.ScraperService
	refiner  service.RefinerService
	notifier telegram.Notifier
	logger   *logger.Logger
}

// New creates a scheduler. notifier may be nil.
func New(
	cfg config.Scheduler,
	scraper service.ScraperService,
	refiner service.RefinerService,
	notifier telegram.Notifier,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		cron:     cron.New(),
		scraper:  scraper,
		refiner:  refiner,
		notifier: notifier,
		logger:   log,
	}
}

// Start registers the cron entries and starts the scheduler. It returns
// without blocking; Stop cancels pending jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduler disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.ScrapeCron, func() { s.runDaily(ctx) })
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", logger.StringField("scrape_cron", s.cfg.ScrapeCron))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDaily(ctx context.Context) {
	date := utils.TimeNowSaoPaulo()
	if utils.IsWeekend(date) {
		return
	}

	result, err := s.scraper.ScrapeDay(ctx, date)
	if err != nil {
		s.logger.Error("Scheduled scrape failed", logger.ErrorField(err))
		return
	}
	s.notify(telegram.FormatScrapeSummary(date, result.Saved, result.Duplicates))

	if !s.cfg.RefineAfterScrape {
		return
	}
	refineResult, err := s.refiner.Refine(ctx)
	if err != nil {
		s.logger.Error("Scheduled refinement failed", logger.ErrorField(err))
		return
	}
	s.notify(telegram.FormatRefineSummary(
		refineResult.Processed, refineResult.Saved,
		refineResult.Buy, refineResult.Hold, refineResult.Sell,
	))
}

func (s *Scheduler) notify(message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(message); err != nil {
		s.logger.Warn("Failed to send notification", logger.ErrorField(err))
	}
}
