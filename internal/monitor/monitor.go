package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bot-vinted/internal/alerts"
	"bot-vinted/internal/analytics"
	"bot-vinted/internal/catalog"
	"bot-vinted/internal/database"
	"bot-vinted/internal/models"
	"bot-vinted/internal/scraper"

	"github.com/google/uuid"
)

// ErrScanInProgress é retornado quando a mesma busca já está sendo executada
var ErrScanInProgress = errors.New("busca já está em execução")

// NotifierFactory cria o canal de notificação para o chat configurado
type NotifierFactory func(chatID int64) alerts.Notifier

// Monitor executa as buscas salvas, grava o catálogo e dispara alertas
type Monitor struct {
	db           *database.DB
	orchestrator *scraper.Orchestrator
	prober       scraper.Prober
	ingest       *catalog.Engine
	notifier     NotifierFactory
	now          func() time.Time

	mu       sync.Mutex
	inFlight map[int64]bool
}

// New cria uma nova instância do monitor
func New(db *database.DB, orchestrator *scraper.Orchestrator, prober scraper.Prober, notifier NotifierFactory) *Monitor {
	return &Monitor{
		db:           db,
		orchestrator: orchestrator,
		prober:       prober,
		ingest:       catalog.NewEngine(db),
		notifier:     notifier,
		now:          time.Now,
		inFlight:     make(map[int64]bool),
	}
}

// Settings carrega as configurações de execução. Em caso de erro usa os padrões.
func (m *Monitor) Settings(ctx context.Context) models.Settings {
	s, err := m.db.LoadSettings(ctx)
	if err != nil {
		log.Printf("[scan] erro ao carregar configurações, usando padrões: %v", err)
	}
	return s
}

// Tick executa as buscas vencidas, se a execução automática estiver ligada
func (m *Monitor) Tick(ctx context.Context) {
	m.scan(ctx, false)
}

// ScanAll executa todas as buscas imediatamente (usado pelo comando /scan)
func (m *Monitor) ScanAll(ctx context.Context) []models.RunSummary {
	return m.scan(ctx, true)
}

func (m *Monitor) scan(ctx context.Context, force bool) []models.RunSummary {
	settings := m.Settings(ctx)
	if !force && !settings.AutoScanEnabled {
		log.Printf("[scan] execução automática desativada")
		return nil
	}

	searches, err := m.db.ListSearches(ctx)
	if err != nil {
		log.Printf("[scan] erro ao listar buscas: %v", err)
		return nil
	}

	var runs []models.RunSummary
	now := m.now()
	for _, search := range searches {
		if ctx.Err() != nil {
			break
		}
		if !force && !search.Due(now, settings.ScanInterval) {
			continue
		}

		run, err := m.scanSafely(ctx, search, settings)
		if errors.Is(err, ErrScanInProgress) {
			log.Printf("[scan] busca %d já em execução, ignorando", search.ID)
			continue
		}
		runs = append(runs, run)
	}
	return runs
}

// scanSafely isola falhas inesperadas de uma busca para não derrubar o ciclo
func (m *Monitor) scanSafely(ctx context.Context, search models.SearchConfig, settings models.Settings) (run models.RunSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scan] pânico na busca %d: %v", search.ID, r)
			err = fmt.Errorf("pânico na busca %d: %v", search.ID, r)
		}
	}()
	return m.ScanSearch(ctx, search, settings)
}

// ScanSearch executa uma busca: pagina os resultados, grava o catálogo e
// avalia alertas para cada anúncio novo ou com preço alterado.
// O resumo da execução é sempre gravado, mesmo quando ela falha.
func (m *Monitor) ScanSearch(ctx context.Context, search models.SearchConfig, settings models.Settings) (models.RunSummary, error) {
	if !m.acquire(search.ID) {
		return models.RunSummary{}, ErrScanInProgress
	}
	defer m.release(search.ID)

	run := models.RunSummary{
		ID:        uuid.New(),
		SearchID:  search.ID,
		StartedAt: m.now(),
		Status:    models.RunOK,
	}
	log.Printf("[scan] iniciando busca %d (%q)", search.ID, search.Term)

	// baseline anterior à ingestão, para que os preços novos não se comparem consigo mesmos
	baseline, err := analytics.ForSearch(ctx, m.db, search.ID, settings.BaselineWindow)
	if err != nil {
		log.Printf("[scan] %v", err)
		run.Errors++
	}

	var found []models.RawListing
	stats, err := m.orchestrator.Run(ctx, search, func(raw models.RawListing) bool {
		found = append(found, raw)
		return true
	})
	run.Pages = stats.Pages
	run.Found = len(found)
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		m.finish(ctx, &run)
		return run, err
	}

	// a partir daqui o cancelamento não interrompe mais nada: o que já foi
	// buscado é gravado e os alertas dos eventos gravados são despachados
	work := context.WithoutCancel(ctx)

	result := m.ingest.Ingest(work, search, found)
	run.New = result.New
	run.Updated = result.Updated
	run.Errors += result.Errors

	rules, err := m.db.ListRules(work, true)
	if err != nil {
		log.Printf("[scan] erro ao carregar regras: %v", err)
		run.Errors++
	}

	engine := alerts.NewEngine(m.notifier(settings.TelegramChatID), m.db, settings.ZThreshold)
	for _, ev := range result.Eligible {
		run.Alerts += engine.Dispatch(work, ev.HistoryID, engine.Evaluate(ev.Listing, baseline, rules))
	}

	if err := m.db.TouchSearch(work, search.ID, run.StartedAt); err != nil {
		log.Printf("[scan] erro ao atualizar última execução da busca %d: %v", search.ID, err)
		run.Errors++
	}

	if stats.Stop == scraper.StopFetchError || stats.Stop == scraper.StopCancelled || run.Errors > 0 {
		run.Status = models.RunPartial
		if stats.Err != nil {
			run.Error = stats.Err.Error()
		}
	}
	m.finish(ctx, &run)
	return run, nil
}

func (m *Monitor) finish(ctx context.Context, run *models.RunSummary) {
	run.FinishedAt = m.now()
	log.Printf("[scan] busca %d finalizada (%s): %d páginas, %d encontrados, %d novos, %d atualizados, %d alertas, %d erros",
		run.SearchID, run.Status, run.Pages, run.Found, run.New, run.Updated, run.Alerts, run.Errors)

	// o resumo é gravado mesmo se o contexto da busca foi cancelado
	if err := m.db.SaveRun(context.WithoutCancel(ctx), *run); err != nil {
		log.Printf("[scan] erro ao gravar execução %s: %v", run.ID, err)
	}
}

func (m *Monitor) acquire(searchID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[searchID] {
		return false
	}
	m.inFlight[searchID] = true
	return true
}

func (m *Monitor) release(searchID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, searchID)
}
