package config

import (
	"golang-ibov-predictor/pkg/config"
)

// Scraper holds the B3 index scraper configuration.
type Scraper struct {
	BasePage      string `mapstructure:"base_page"`
	BaseAPI       string `mapstructure:"base_api"`
	Index         string `mapstructure:"index"`
	PageSize      int    `mapstructure:"page_size"`
	MaxRetries    int    `mapstructure:"max_retries"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

// Scheduler holds the cron configuration for the daily collection job.
type Scheduler struct {
	Enabled           bool   `mapstructure:"enabled"`
	ScrapeCron        string `mapstructure:"scrape_cron"`
	RefineAfterScrape bool   `mapstructure:"refine_after_scrape"`
}

// ML holds the refinement and training configuration.
type ML struct {
	ModelsDir       string `mapstructure:"models_dir"`
	MinSnapshots    int    `mapstructure:"min_snapshots"`
	MinTrainSamples int    `mapstructure:"min_train_samples"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Gemini holds the configuration for the Gemini API.
type Gemini struct {
	Enabled             bool   `mapstructure:"enabled"`
	APIKey              string `mapstructure:"api_key"`
	BaseURL             string `mapstructure:"base_url"`
	Model               string `mapstructure:"model"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute"`
	MaxTokenPerMinute   int    `mapstructure:"max_token_per_minute"`
}

// Config holds the full configuration for the API service.
type Config struct {
	App       config.App      `mapstructure:"app"`
	Logger    config.Logger   `mapstructure:"logger"`
	Database  config.Database `mapstructure:"database"`
	Redis     config.Redis    `mapstructure:"redis"`
	API       config.API      `mapstructure:"api"`
	Scraper   Scraper         `mapstructure:"scraper"`
	Scheduler Scheduler       `mapstructure:"scheduler"`
	ML        ML              `mapstructure:"ml"`
	Telegram  Telegram        `mapstructure:"telegram"`
	Gemini    Gemini          `mapstructure:"gemini"`
}

// Load loads the API service configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
