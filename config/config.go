package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config contém as configurações de inicialização da aplicação.
// As configurações de execução (intervalo de busca, chat de alertas etc.)
// ficam na tabela settings do banco.
type Config struct {
	TelegramBotToken   string
	TelegramChatID     int64
	DatabasePath       string
	VintedBaseURL      string
	SchedulerTick      time.Duration
	ReconcileInterval  time.Duration
	FetchTimeout       time.Duration
	ProbeTimeout       time.Duration
	PageDelayMin       time.Duration
	PageDelayMax       time.Duration
	ProbeRatePerMinute int
}

// Load carrega as configurações das variáveis de ambiente e, se existir,
// do arquivo vinted.yaml no diretório atual
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("vinted")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
		}
	}

	cfg := &Config{
		TelegramBotToken:   v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     v.GetInt64("TELEGRAM_CHAT_ID"),
		DatabasePath:       v.GetString("DATABASE_PATH"),
		VintedBaseURL:      v.GetString("VINTED_BASE_URL"),
		SchedulerTick:      time.Duration(v.GetInt("SCHEDULER_TICK_MINUTES")) * time.Minute,
		ReconcileInterval:  time.Duration(v.GetInt("RECONCILE_INTERVAL_HOURS")) * time.Hour,
		FetchTimeout:       time.Duration(v.GetInt("FETCH_TIMEOUT_SECONDS")) * time.Second,
		ProbeTimeout:       time.Duration(v.GetInt("PROBE_TIMEOUT_SECONDS")) * time.Second,
		PageDelayMin:       time.Duration(v.GetInt("PAGE_DELAY_MIN_MS")) * time.Millisecond,
		PageDelayMax:       time.Duration(v.GetInt("PAGE_DELAY_MAX_MS")) * time.Millisecond,
		ProbeRatePerMinute: v.GetInt("PROBE_RATE_PER_MINUTE"),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_PATH", "./vinted.db")
	v.SetDefault("VINTED_BASE_URL", "https://www.vinted.es")
	v.SetDefault("SCHEDULER_TICK_MINUTES", 15)
	v.SetDefault("RECONCILE_INTERVAL_HOURS", 6)
	v.SetDefault("FETCH_TIMEOUT_SECONDS", 60)
	v.SetDefault("PROBE_TIMEOUT_SECONDS", 20)
	v.SetDefault("PAGE_DELAY_MIN_MS", 2000)
	v.SetDefault("PAGE_DELAY_MAX_MS", 6000)
	v.SetDefault("PROBE_RATE_PER_MINUTE", 30)
}

func validate(cfg *Config) error {
	if cfg.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN não configurado")
	}
	if cfg.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH vazio")
	}

	u, err := url.Parse(cfg.VintedBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("VINTED_BASE_URL inválida: %q", cfg.VintedBaseURL)
	}

	if cfg.SchedulerTick <= 0 {
		return fmt.Errorf("SCHEDULER_TICK_MINUTES deve ser maior que zero")
	}
	if cfg.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_HOURS deve ser maior que zero")
	}
	if cfg.FetchTimeout <= 0 || cfg.ProbeTimeout <= 0 {
		return fmt.Errorf("timeouts devem ser maiores que zero")
	}
	if cfg.PageDelayMin < 0 || cfg.PageDelayMax < cfg.PageDelayMin {
		return fmt.Errorf("intervalo entre páginas inválido: %v a %v", cfg.PageDelayMin, cfg.PageDelayMax)
	}
	if cfg.ProbeRatePerMinute <= 0 {
		return fmt.Errorf("PROBE_RATE_PER_MINUTE deve ser maior que zero")
	}
	return nil
}
