package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bot-vinted/internal/alerts"
	"bot-vinted/internal/database"
	"bot-vinted/internal/models"
	"bot-vinted/internal/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher devolve sempre a mesma página, ou erro
type stubFetcher struct {
	mu      sync.Mutex
	page    string
	err     error
	calls   int
	onFetch func()
}

func (f *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.page), nil
}

func (f *stubFetcher) set(page string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = page
}

type stubProber map[string]scraper.ProbeResult

func (p stubProber) Probe(_ context.Context, url string) scraper.ProbeResult {
	if r, ok := p[url]; ok {
		return r
	}
	return scraper.ProbeActive
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func page(prices map[int]float64) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for id := 1; id <= len(prices); id++ {
		fmt.Fprintf(&b, `<div data-testid="grid-item"><a href="/items/%d" title="Item %d"></a>`, id, id)
		fmt.Fprintf(&b, `<p data-testid="p--description-title">Nike</p><p data-testid="p--price-text">%.2f €</p></div>`, prices[id])
	}
	b.WriteString("</body></html>")
	return b.String()
}

func withNextPage(html string) string {
	return strings.Replace(html, "</body>", `<a rel="next" href="/catalog?page=2">›</a></body>`, 1)
}

type fixture struct {
	db       *database.DB
	fetcher  *stubFetcher
	notifier *recordingNotifier
	monitor  *Monitor
}

func newFixture(t *testing.T, prober scraper.Prober) *fixture {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	extractor, err := scraper.NewExtractor("https://www.vinted.es")
	require.NoError(t, err)

	f := &fixture{db: db, fetcher: &stubFetcher{}, notifier: &recordingNotifier{}}
	orch := scraper.NewOrchestrator(f.fetcher, scraper.NewQueryBuilder(nil, "https://www.vinted.es"), extractor, scraper.OrchestratorConfig{FetchTimeout: time.Second})
	f.monitor = New(db, orch, prober, func(int64) alerts.Notifier { return f.notifier })
	return f
}

func (f *fixture) search(t *testing.T, term string) models.SearchConfig {
	t.Helper()
	id, err := f.db.CreateSearch(context.Background(), models.SearchConfig{Term: term}, 0)
	require.NoError(t, err)
	s, err := f.db.GetSearch(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestScanSearch_IngestsAndAlertsOncePerEvent(t *testing.T) {
	f := newFixture(t, stubProber{})
	ctx := context.Background()
	search := f.search(t, "nike")
	_, err := f.db.CreateRule(ctx, models.AlertRule{Name: "barato", Brands: []string{"nike"}, MaxPrice: 50, Active: true})
	require.NoError(t, err)
	settings := models.DefaultSettings()

	f.fetcher.set(page(map[int]float64{1: 100, 2: 100, 3: 100, 4: 100}))
	run, err := f.monitor.ScanSearch(ctx, search, settings)
	require.NoError(t, err)
	assert.Equal(t, models.RunOK, run.Status)
	assert.Equal(t, 4, run.Found)
	assert.Equal(t, 4, run.New)
	assert.Zero(t, run.Alerts)

	// queda de preço: regra e z-score disparam
	f.fetcher.set(page(map[int]float64{1: 40, 2: 100, 3: 100, 4: 100}))
	run, err = f.monitor.ScanSearch(ctx, search, settings)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 2, run.Alerts)
	require.Len(t, f.notifier.messages, 2)
	assert.Contains(t, f.notifier.messages[0], "barato")
	assert.Contains(t, f.notifier.messages[1], "FORA DA CURVA")

	// mesma página: nenhum evento novo, nenhum alerta
	run, err = f.monitor.ScanSearch(ctx, search, settings)
	require.NoError(t, err)
	assert.Zero(t, run.Updated)
	assert.Zero(t, run.Alerts)
	assert.Len(t, f.notifier.messages, 2)

	runs, err := f.db.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	stored, err := f.db.GetSearch(ctx, search.ID)
	require.NoError(t, err)
	assert.False(t, stored.LastRun.IsZero())
}

func TestScanSearch_CancelDuringPageDelayKeepsFetchedListings(t *testing.T) {
	f := newFixture(t, stubProber{})
	search := f.search(t, "nike")
	_, err := f.db.CreateRule(context.Background(), models.AlertRule{Name: "barato", MaxPrice: 50, Active: true})
	require.NoError(t, err)

	// o cancelamento chega durante a primeira página; a pausa antes da segunda encerra a paginação
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.fetcher.set(withNextPage(page(map[int]float64{1: 30, 2: 40, 3: 60})))
	f.fetcher.onFetch = cancel

	run, err := f.monitor.ScanSearch(ctx, search, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, run.Status)
	assert.Equal(t, 1, run.Pages)
	assert.Equal(t, 1, f.fetcher.calls)
	assert.Equal(t, 3, run.New)
	assert.Zero(t, run.Errors)
	assert.Equal(t, 2, run.Alerts)

	bg := context.Background()
	count, err := f.db.CountListings(bg)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, f.notifier.messages, 2)

	stored, err := f.db.GetSearch(bg, search.ID)
	require.NoError(t, err)
	assert.False(t, stored.LastRun.IsZero())

	runs, err := f.db.RecentRuns(bg, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunPartial, runs[0].Status)
}

func TestScanSearch_FirstPageFailure(t *testing.T) {
	f := newFixture(t, stubProber{})
	ctx := context.Background()
	search := f.search(t, "nike")
	f.fetcher.err = errors.New("status code: 403")

	run, err := f.monitor.ScanSearch(ctx, search, models.DefaultSettings())
	assert.ErrorIs(t, err, scraper.ErrNoPages)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.NotEmpty(t, run.Error)

	runs, err := f.db.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)

	stored, err := f.db.GetSearch(ctx, search.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastRun.IsZero(), "falha não conta como execução")
}

func TestScanSearch_RejectsConcurrentRunOfSameSearch(t *testing.T) {
	f := newFixture(t, stubProber{})
	search := f.search(t, "nike")
	f.fetcher.set(page(map[int]float64{1: 10}))

	require.True(t, f.monitor.acquire(search.ID))
	_, err := f.monitor.ScanSearch(context.Background(), search, models.DefaultSettings())
	assert.ErrorIs(t, err, ErrScanInProgress)
	assert.Zero(t, f.fetcher.calls)

	f.monitor.release(search.ID)
	_, err = f.monitor.ScanSearch(context.Background(), search, models.DefaultSettings())
	assert.NoError(t, err)
}

func TestTick_RespectsSettingsAndDueTime(t *testing.T) {
	f := newFixture(t, stubProber{})
	ctx := context.Background()
	fresh := f.search(t, "nike")
	stale := f.search(t, "adidas")
	f.fetcher.set(page(map[int]float64{1: 10}))

	require.NoError(t, f.db.TouchSearch(ctx, fresh.ID, time.Now()))
	require.NoError(t, f.db.TouchSearch(ctx, stale.ID, time.Now().Add(-48*time.Hour)))

	require.NoError(t, f.db.SetSetting(ctx, models.SettingAutoScanEnabled, "false"))
	f.monitor.Tick(ctx)
	assert.Zero(t, f.fetcher.calls)

	require.NoError(t, f.db.SetSetting(ctx, models.SettingAutoScanEnabled, "true"))
	f.monitor.Tick(ctx)
	assert.Equal(t, 1, f.fetcher.calls)

	runs, err := f.db.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, stale.ID, runs[0].SearchID)

	all := f.monitor.ScanAll(ctx)
	assert.Len(t, all, 2)
}

func TestReconcile(t *testing.T) {
	prober := stubProber{
		"https://www.vinted.es/items/1": scraper.ProbeSold,
		"https://www.vinted.es/items/2": scraper.ProbeUnreachable,
	}
	f := newFixture(t, prober)
	ctx := context.Background()
	search := f.search(t, "nike")
	f.fetcher.set(page(map[int]float64{1: 10, 2: 20, 3: 30}))
	_, err := f.monitor.ScanSearch(ctx, search, models.DefaultSettings())
	require.NoError(t, err)

	res := f.monitor.Reconcile(ctx)
	assert.Equal(t, ReconcileResult{Checked: 3, Sold: 1, Removed: 1, Active: 1}, res)

	l, err := f.db.GetListingByURL(ctx, "https://www.vinted.es/items/1")
	require.NoError(t, err)
	assert.Equal(t, models.StateSold, l.State)
	assert.False(t, l.SoldAt.IsZero())

	l, err = f.db.GetListingByURL(ctx, "https://www.vinted.es/items/2")
	require.NoError(t, err)
	assert.Equal(t, models.SoldReasonRemoved, l.SoldReason)
	assert.True(t, l.SoldAt.IsZero())

	// só o anúncio ainda ativo volta a ser verificado
	res = f.monitor.Reconcile(ctx)
	assert.Equal(t, 1, res.Checked)
}

func TestReconcile_BatchSizeAndCancellation(t *testing.T) {
	f := newFixture(t, stubProber{})
	ctx := context.Background()
	search := f.search(t, "nike")
	f.fetcher.set(page(map[int]float64{1: 10, 2: 20, 3: 30}))
	_, err := f.monitor.ScanSearch(ctx, search, models.DefaultSettings())
	require.NoError(t, err)

	require.NoError(t, f.db.SetSetting(ctx, models.SettingReconcileBatchSize, "2"))
	assert.Equal(t, 2, f.monitor.Reconcile(ctx).Checked)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Zero(t, f.monitor.Reconcile(cancelled).Checked)
}

func TestDeals(t *testing.T) {
	f := newFixture(t, stubProber{})
	ctx := context.Background()
	search := f.search(t, "nike")
	f.fetcher.set(page(map[int]float64{1: 100, 2: 100, 3: 100, 4: 40, 5: 70}))
	_, err := f.monitor.ScanSearch(ctx, search, models.DefaultSettings())
	require.NoError(t, err)

	deals, err := f.monitor.Deals(ctx, 0, 0)
	require.NoError(t, err)
	// média 82: só 40 fica abaixo de 65,6
	require.Len(t, deals, 1)
	assert.Equal(t, "https://www.vinted.es/items/4", deals[0].Listing.URL)
	assert.InDelta(t, 82.0, deals[0].Mean, 1e-9)
	assert.InDelta(t, (82.0-40.0)/82.0*100, deals[0].Discount, 1e-9)

	deals, err = f.monitor.Deals(ctx, search.ID, 1)
	require.NoError(t, err)
	assert.Len(t, deals, 1)

	_, err = f.monitor.Deals(ctx, 999, 0)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
