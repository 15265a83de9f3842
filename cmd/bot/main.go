package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"bot-vinted/config"
	"bot-vinted/internal/bot"
	"bot-vinted/internal/database"
	"bot-vinted/internal/models"
	"bot-vinted/internal/monitor"
	"bot-vinted/internal/scheduler"
	"bot-vinted/internal/scraper"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	// Carregar variáveis de ambiente
	if err := godotenv.Load(); err != nil {
		log.Println("Arquivo .env não encontrado, usando variáveis de ambiente do sistema")
	}

	// Carregar configurações
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Erro ao carregar configurações: %v", err)
	}

	// Inicializar banco de dados
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Erro ao inicializar banco de dados: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// O chat do .env só é usado se ainda não houver um configurado pelo /set
	if cfg.TelegramChatID != 0 {
		if err := db.SeedSetting(ctx, models.SettingTelegramChatID, strconv.FormatInt(cfg.TelegramChatID, 10)); err != nil {
			log.Fatalf("Erro ao gravar chat do Telegram: %v", err)
		}
	}

	// Inicializar bot do Telegram
	telegramBot, err := bot.Init(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("Erro ao inicializar bot do Telegram: %v", err)
	}

	// Montar o pipeline de busca
	filters := scraper.DefaultFilters()
	extractor, err := scraper.NewExtractor(cfg.VintedBaseURL)
	if err != nil {
		log.Fatalf("Erro ao configurar extrator: %v", err)
	}
	orchestrator := scraper.NewOrchestrator(
		scraper.NewHTTPFetcher(cfg.FetchTimeout),
		scraper.NewQueryBuilder(filters, cfg.VintedBaseURL),
		extractor,
		scraper.OrchestratorConfig{
			FetchTimeout: cfg.FetchTimeout,
			MinDelay:     cfg.PageDelayMin,
			MaxDelay:     cfg.PageDelayMax,
		},
	)
	prober := scraper.NewHTTPProber(cfg.ProbeTimeout, cfg.ProbeRatePerMinute)

	// Criar gerenciador de monitoramento
	monitorInstance := monitor.New(db, orchestrator, prober, bot.NotifierFactory(telegramBot))

	// Tarefas periódicas
	sched := scheduler.New()
	sched.Register("scan", cfg.SchedulerTick, monitorInstance.Tick)
	sched.Register("reconcile", cfg.ReconcileInterval, func(ctx context.Context) {
		monitorInstance.Reconcile(ctx)
	})
	sched.Start(ctx)

	// Configurar comandos do bot
	handler := bot.NewHandler(telegramBot, db, monitorInstance, filters)
	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		handler.Run(ctx)
	}()

	// Aguardar sinal de interrupção
	<-ctx.Done()

	log.Println("Encerrando bot...")
	sched.Stop()
	// comandos em andamento ainda usam o banco
	<-handlerDone
}
