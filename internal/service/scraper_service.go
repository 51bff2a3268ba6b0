package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang-ibov-predictor/internal/config"
	"golang-ibov-predictor/internal/dto"
	"golang-ibov-predictor/internal/entity"
	"golang-ibov-predictor/internal/repository"
	"golang-ibov-predictor/pkg/logger"
	"golang-ibov-predictor/pkg/utils"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// ScraperService collects the daily IBOV composition from B3 and appends it
// to the snapshot store. Rows already stored for a (code, date) pair are
// skipped; snapshots are immutable once written.
type ScraperService interface {
	ScrapeDay(ctx context.Context, date time.Time) (*dto.ScrapeResult, error)
	ScrapeHistorical(ctx context.Context, months int) (*dto.BackfillResult, error)
	ListAssets(ctx context.Context) ([]entity.IndexAsset, error)
}

// NewScraperService creates a new B3 scraper service.
func NewScraperService(cfg config.Scraper, assetRepo repository.IndexAssetRepository, log *logger.Logger) ScraperService {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	return &scraperService{
		cfg:       cfg,
		assetRepo: assetRepo,
		logger:    log,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

type scraperService struct {
	cfg       config.Scraper
	assetRepo repository.IndexAssetRepository
	logger    *logger.Logger
	client    *http.Client
	limiter   *rate.Limiter
}

func (s *scraperService) ScrapeDay(ctx context.Context, date time.Time) (*dto.ScrapeResult, error) {
	date = utils.DateOnly(date)

	assets, source, err := s.fetchPortfolio(ctx, utils.FormatB3Date(date))
	if err != nil {
		return nil, err
	}

	saved, duplicates, err := s.persist(ctx, assets, date)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Scrape completed",
		logger.StringField("date", date.Format("2006-01-02")),
		logger.StringField("source", source),
		logger.IntField("saved", saved),
		logger.IntField("duplicates", duplicates),
	)

	return &dto.ScrapeResult{
		Date:       date.Format("2006-01-02"),
		Total:      len(assets),
		Saved:      saved,
		Duplicates: duplicates,
		Source:     source,
	}, nil
}

func (s *scraperService) ScrapeHistorical(ctx context.Context, months int) (*dto.BackfillResult, error) {
	if months <= 0 {
		months = 6
	}
	today := utils.TimeNowSaoPaulo()
	result := &dto.BackfillResult{Months: months}

	for daysBack := 0; daysBack < months*30; daysBack++ {
		target := utils.DateOnly(today.AddDate(0, 0, -daysBack))
		if utils.IsWeekend(target) {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := s.ScrapeDay(ctx, target)
		if err != nil {
			s.logger.Warn("Backfill day failed",
				logger.StringField("date", target.Format("2006-01-02")),
				logger.ErrorField(err),
			)
			result.Errors++
			continue
		}
		if res.Total == 0 {
			result.Errors++
			continue
		}
		result.DaysScraped++
		result.TotalSaved += res.Saved
	}

	if result.DaysScraped > 0 {
		result.AveragePerDay = float64(result.TotalSaved) / float64(result.DaysScraped)
	}
	return result, nil
}

func (s *scraperService) ListAssets(ctx context.Context) ([]entity.IndexAsset, error) {
	return s.assetRepo.FindAll(ctx)
}

// fetchPortfolio tries the index proxy JSON endpoint first and falls back to
// parsing the day page's HTML table when the JSON comes back empty.
func (s *scraperService) fetchPortfolio(ctx context.Context, dateStr string) ([]dto.PortfolioAsset, string, error) {
	assets, err := s.fetchPortfolioJSON(ctx, dateStr)
	if err != nil {
		s.logger.Warn("JSON endpoint failed, trying HTML fallback", logger.ErrorField(err))
	}
	if len(assets) > 0 {
		return assets, "json", nil
	}

	assets, err = s.fetchPortfolioHTML(ctx)
	if err != nil {
		return nil, "", err
	}
	return assets, "html", nil
}

func (s *scraperService) fetchPortfolioJSON(ctx context.Context, dateStr string) ([]dto.PortfolioAsset, error) {
	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 120
	}
	index := s.cfg.Index
	if index == "" {
		index = "IBOV"
	}
	payload := dto.PortfolioDayRequest{
		Language:   "pt-br",
		PageNumber: 1,
		PageSize:   pageSize,
		Index:      index,
		Segment:    "1",
		Date:       dateStr,
	}
	encoded, err := encodePortfolioRequest(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s", s.cfg.BaseAPI, encoded)
	body, err := s.getWithRetry(ctx, url, "application/json, text/plain, */*")
	if err != nil {
		return nil, err
	}

	var resp dto.PortfolioDayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON from index proxy: %w", err)
	}

	s.logger.Debug("Index proxy response",
		logger.IntField("results", len(resp.Results)),
		logger.IntField("total_records", resp.Page.TotalRecords),
	)
	return resp.Results, nil
}

func (s *scraperService) fetchPortfolioHTML(ctx context.Context) ([]dto.PortfolioAsset, error) {
	body, err := s.getWithRetry(ctx, s.cfg.BasePage, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	return parsePortfolioHTML(strings.NewReader(string(body)))
}

// getWithRetry performs a GET with browser-like headers, retrying transient
// failures (network errors, 429, 5xx) with linear backoff.
func (s *scraperService) getWithRetry(ctx context.Context, url, accept string) ([]byte, error) {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
		req.Header.Set("Accept", accept)
		req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
		req.Header.Set("Origin", "https://www.b3.com.br")
		req.Header.Set("Referer", "https://www.b3.com.br/")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode == http.StatusOK {
				return body, nil
			} else if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("b3 returned status %d", resp.StatusCode)
			} else {
				return nil, fmt.Errorf("b3 returned status %d", resp.StatusCode)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("b3 request failed after %d attempts: %w", maxRetries, lastErr)
}

func (s *scraperService) persist(ctx context.Context, assets []dto.PortfolioAsset, date time.Time) (saved, duplicates int, err error) {
	for _, a := range assets {
		code := strings.TrimSpace(a.Cod)
		if code == "" {
			continue
		}
		exists, err := s.assetRepo.Exists(ctx, code, date)
		if err != nil {
			return saved, duplicates, err
		}
		if exists {
			duplicates++
			continue
		}
		asset := &entity.IndexAsset{
			Code:           code,
			Name:           strings.TrimSpace(a.Asset),
			Type:           strings.TrimSpace(a.Type),
			Participation:  strings.TrimSpace(a.Part),
			TheoreticalQty: strings.TrimSpace(a.TheoricalQty),
			Date:           date,
		}
		if err := s.assetRepo.Create(ctx, asset); err != nil {
			return saved, duplicates, fmt.Errorf("failed to save snapshot for %s: %w", code, err)
		}
		saved++
	}
	return saved, duplicates, nil
}

// encodePortfolioRequest encodes the proxy payload the way the B3 frontend
// does: compact JSON, then base64 in the URL path.
func encodePortfolioRequest(payload dto.PortfolioDayRequest) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// parsePortfolioHTML extracts composition rows from the day page's 5-column
// table.
func parsePortfolioHTML(r io.Reader) ([]dto.PortfolioAsset, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse portfolio HTML: %w", err)
	}

	var assets []dto.PortfolioAsset
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != 5 {
			return
		}
		asset := dto.PortfolioAsset{
			Cod:          strings.TrimSpace(cells.Eq(0).Text()),
			Asset:        strings.TrimSpace(cells.Eq(1).Text()),
			Type:         strings.TrimSpace(cells.Eq(2).Text()),
			TheoricalQty: strings.TrimSpace(cells.Eq(3).Text()),
			Part:         strings.TrimSpace(cells.Eq(4).Text()),
		}
		if asset.Cod == "" || asset.Asset == "" || asset.Type == "" {
			return
		}
		assets = append(assets, asset)
	})
	return assets, nil
}
