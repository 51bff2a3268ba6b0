package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-ibov-predictor/internal/config"
	"golang-ibov-predictor/internal/dto"
)

const portfolioPageHTML = `
<html><body>
<table>
  <tr><th>Código</th><th>Ação</th><th>Tipo</th><th>Qtde. Teórica</th><th>Part. (%)</th></tr>
  <tr><td>PETR4</td><td>PETROBRAS</td><td>PN N2</td><td>4.116.940.538</td><td>6,871</td></tr>
  <tr><td>VALE3</td><td>VALE</td><td>ON NM</td><td>4.539.007.580</td><td>11,771</td></tr>
  <tr><td></td><td>Quantidade Teórica Total</td><td></td><td>100.000</td><td>100,000</td></tr>
  <tr><td>incomplete</td><td>row</td></tr>
</table>
</body></html>`

func portfolioJSON(t *testing.T, assets ...dto.PortfolioAsset) []byte {
	t.Helper()
	var resp dto.PortfolioDayResponse
	resp.Results = assets
	resp.Page.TotalRecords = len(assets)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	return raw
}

func TestEncodePortfolioRequest(t *testing.T) {
	encoded, err := encodePortfolioRequest(dto.PortfolioDayRequest{
		Language:   "pt-br",
		PageNumber: 1,
		PageSize:   120,
		Index:      "IBOV",
		Segment:    "1",
		Date:       "12/03/25",
	})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var decoded dto.PortfolioDayRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "pt-br", decoded.Language)
	assert.Equal(t, "IBOV", decoded.Index)
	assert.Equal(t, "12/03/25", decoded.Date)
	assert.Equal(t, 120, decoded.PageSize)
}

func TestParsePortfolioHTML(t *testing.T) {
	assets, err := parsePortfolioHTML(strings.NewReader(portfolioPageHTML))
	require.NoError(t, err)
	require.Len(t, assets, 2, "header, totals and short rows must be skipped")

	assert.Equal(t, "PETR4", assets[0].Cod)
	assert.Equal(t, "PETROBRAS", assets[0].Asset)
	assert.Equal(t, "PN N2", assets[0].Type)
	assert.Equal(t, "4.116.940.538", assets[0].TheoricalQty)
	assert.Equal(t, "6,871", assets[0].Part)
	assert.Equal(t, "VALE3", assets[1].Cod)
}

func TestParsePortfolioHTML_NoTable(t *testing.T) {
	assets, err := parsePortfolioHTML(strings.NewReader("<html><body><p>manutenção</p></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestScraperService_ScrapeDay(t *testing.T) {
	ctx := context.Background()
	date := day(2025, time.March, 12)

	t.Run("stores rows from the json endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write(portfolioJSON(t,
				dto.PortfolioAsset{Cod: "PETR4", Asset: "PETROBRAS", Type: "PN N2", TheoricalQty: "4.116.940.538", Part: "6,871"},
				dto.PortfolioAsset{Cod: " VALE3 ", Asset: "VALE", Type: "ON NM", TheoricalQty: "4.539.007.580", Part: "11,771"},
			))
		}))
		defer server.Close()

		repo := &fakeAssetRepo{}
		svc := NewScraperService(config.Scraper{BaseAPI: server.URL, MaxRetries: 1}, repo, newTestLogger())

		result, err := svc.ScrapeDay(ctx, date)
		require.NoError(t, err)
		assert.Equal(t, "json", result.Source)
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, 2, result.Saved)
		assert.Zero(t, result.Duplicates)

		stored, err := repo.FindByCodeAndDate(ctx, "VALE3", date)
		require.NoError(t, err)
		require.NotNil(t, stored, "codes must be stored trimmed")
	})

	t.Run("rescrape counts duplicates and stores nothing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write(portfolioJSON(t,
				dto.PortfolioAsset{Cod: "PETR4", Asset: "PETROBRAS", Type: "PN N2", TheoricalQty: "100", Part: "6,871"},
			))
		}))
		defer server.Close()

		repo := &fakeAssetRepo{}
		svc := NewScraperService(config.Scraper{BaseAPI: server.URL, MaxRetries: 1}, repo, newTestLogger())

		_, err := svc.ScrapeDay(ctx, date)
		require.NoError(t, err)
		result, err := svc.ScrapeDay(ctx, date)
		require.NoError(t, err)

		assert.Zero(t, result.Saved)
		assert.Equal(t, 1, result.Duplicates)
		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("falls back to html when the json endpoint is empty", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write(portfolioJSON(t))
		}))
		defer api.Close()
		page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(portfolioPageHTML))
		}))
		defer page.Close()

		repo := &fakeAssetRepo{}
		svc := NewScraperService(config.Scraper{BaseAPI: api.URL, BasePage: page.URL, MaxRetries: 1}, repo, newTestLogger())

		result, err := svc.ScrapeDay(ctx, date)
		require.NoError(t, err)
		assert.Equal(t, "html", result.Source)
		assert.Equal(t, 2, result.Saved)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(portfolioJSON(t,
				dto.PortfolioAsset{Cod: "ITUB4", Asset: "ITAUUNIBANCO", Type: "PN N1", TheoricalQty: "100", Part: "3,100"},
			))
		}))
		defer server.Close()

		repo := &fakeAssetRepo{}
		svc := NewScraperService(config.Scraper{BaseAPI: server.URL, MaxRetries: 3}, repo, newTestLogger())

		result, err := svc.ScrapeDay(ctx, date)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Saved)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("non-retryable status fails on the first attempt", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		svc := NewScraperService(config.Scraper{BaseAPI: server.URL, BasePage: server.URL, MaxRetries: 3}, &fakeAssetRepo{}, newTestLogger())

		_, err := svc.ScrapeDay(ctx, day(2025, time.March, 12))
		require.Error(t, err)
		assert.Equal(t, int32(2), calls.Load(), "one json attempt plus one html attempt, no retries")
	})
}

func TestScraperService_Persist(t *testing.T) {
	ctx := context.Background()
	date := day(2025, time.March, 12)
	repo := &fakeAssetRepo{}
	s := &scraperService{assetRepo: repo, logger: newTestLogger()}

	assets := []dto.PortfolioAsset{
		{Cod: "PETR4", Asset: "PETROBRAS", Type: "PN N2", TheoricalQty: "100", Part: "6,871"},
		{Cod: "", Asset: "GHOST", Type: "ON", TheoricalQty: "1", Part: "0,001"},
	}
	saved, duplicates, err := s.persist(ctx, assets, date)
	require.NoError(t, err)
	assert.Equal(t, 1, saved, "blank codes are dropped")
	assert.Zero(t, duplicates)

	saved, duplicates, err = s.persist(ctx, assets, date)
	require.NoError(t, err)
	assert.Zero(t, saved)
	assert.Equal(t, 1, duplicates)
}
