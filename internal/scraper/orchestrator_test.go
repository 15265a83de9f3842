package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bot-vinted/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageFetcher devolve as páginas na ordem das chamadas
type pageFetcher struct {
	mu    sync.Mutex
	pages []string
	fail  map[int]error // índice da chamada -> erro
	urls  []string
}

func (f *pageFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.urls)
	f.urls = append(f.urls, url)
	if err := f.fail[call]; err != nil {
		return nil, err
	}
	if call >= len(f.pages) {
		return nil, errors.New("página inexistente")
	}
	return []byte(f.pages[call]), nil
}

// resultsPage monta uma página com os IDs informados e, se next > 0, link para a próxima
func resultsPage(next int, ids ...int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div data-testid="grid-item"><a href="/items/%d" title="Item %d"></a><p data-testid="x--price-text">%d,00 €</p></div>`, id, id, id)
	}
	if next > 0 {
		fmt.Fprintf(&b, `<a rel="next" href="/catalog?page=%d">›</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newTestOrchestrator(t *testing.T, f Fetcher) (*Orchestrator, *int) {
	t.Helper()
	e, err := NewExtractor("https://www.vinted.es")
	require.NoError(t, err)
	o := NewOrchestrator(f, NewQueryBuilder(nil, "https://www.vinted.es"), e, OrchestratorConfig{
		FetchTimeout: time.Second,
		MinDelay:     2 * time.Second,
		MaxDelay:     6 * time.Second,
	})
	sleeps := 0
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		if d < 2*time.Second || d > 6*time.Second {
			t.Errorf("atraso fora do intervalo: %v", d)
		}
		return ctx.Err()
	}
	return o, &sleeps
}

func collect(t *testing.T, o *Orchestrator, search models.SearchConfig) ([]models.RawListing, RunStats, error) {
	t.Helper()
	var out []models.RawListing
	stats, err := o.Run(context.Background(), search, func(r models.RawListing) bool {
		out = append(out, r)
		return true
	})
	return out, stats, err
}

func TestRun_StopsAtMaxItems(t *testing.T) {
	f := &pageFetcher{pages: []string{
		resultsPage(2, 1, 2, 3, 4, 5),
		resultsPage(3, 6, 7, 8, 9, 10),
		resultsPage(0, 11, 12),
	}}
	o, sleeps := newTestOrchestrator(t, f)

	out, stats, err := collect(t, o, models.SearchConfig{Term: "nike", MaxPages: 3, MaxItems: 7})
	require.NoError(t, err)

	assert.Len(t, out, 7)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, StopMaxItems, stats.Stop)
	assert.Len(t, f.urls, 2)
	assert.Equal(t, 1, *sleeps)
}

func TestRun_StopsAtMaxPages(t *testing.T) {
	f := &pageFetcher{pages: []string{
		resultsPage(2, 1, 2),
		resultsPage(3, 3, 4),
		resultsPage(4, 5, 6),
	}}
	o, _ := newTestOrchestrator(t, f)

	out, stats, err := collect(t, o, models.SearchConfig{Term: "nike", MaxPages: 2, MaxItems: 100})
	require.NoError(t, err)

	assert.Len(t, out, 4)
	assert.Equal(t, StopMaxPages, stats.Stop)
	assert.Len(t, f.urls, 2)
	assert.Contains(t, f.urls[0], "search_text=nike")
	assert.Equal(t, "https://www.vinted.es/catalog?page=2", f.urls[1])
}

func TestRun_StopsWithoutNextPage(t *testing.T) {
	f := &pageFetcher{pages: []string{resultsPage(0, 1, 2)}}
	o, sleeps := newTestOrchestrator(t, f)

	out, stats, err := collect(t, o, models.SearchConfig{Term: "nike", MaxPages: 5, MaxItems: 100})
	require.NoError(t, err)

	assert.Len(t, out, 2)
	assert.Equal(t, StopNoNextPage, stats.Stop)
	assert.Zero(t, *sleeps)
}

func TestRun_DedupsWithinRun(t *testing.T) {
	f := &pageFetcher{pages: []string{
		resultsPage(2, 1, 2, 3),
		resultsPage(0, 3, 4),
	}}
	o, _ := newTestOrchestrator(t, f)

	out, stats, err := collect(t, o, models.SearchConfig{Term: "nike", MaxPages: 5, MaxItems: 100})
	require.NoError(t, err)

	assert.Len(t, out, 4)
	assert.Equal(t, 4, stats.Yielded)
	seen := map[string]bool{}
	for _, r := range out {
		assert.False(t, seen[r.URL], r.URL)
		seen[r.URL] = true
	}
}

func TestRun_FirstPageFailure(t *testing.T) {
	f := &pageFetcher{fail: map[int]error{0: errors.New("timeout")}}
	o, _ := newTestOrchestrator(t, f)

	out, stats, err := collect(t, o, models.SearchConfig{Term: "nike"})
	assert.ErrorIs(t, err, ErrNoPages)
	assert.Empty(t, out)
	assert.Equal(t, StopFetchError, stats.Stop)
}

func TestRun_LaterPageFailureEndsCleanly(t *testing.T) {
	f := &pageFetcher{
		pages: []string{resultsPage(2, 1, 2), ""},
		fail:  map[int]error{1: errors.New("status code: 503")},
	}
	o, _ := newTestOrchestrator(t, f)

	out, stats, err := collect(t, o, models.SearchConfig{Term: "nike", MaxPages: 3, MaxItems: 100})
	require.NoError(t, err)

	assert.Len(t, out, 2)
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, StopFetchError, stats.Stop)
	assert.Error(t, stats.Err)
}

func TestRun_ConsumerStops(t *testing.T) {
	f := &pageFetcher{pages: []string{resultsPage(2, 1, 2, 3)}}
	o, _ := newTestOrchestrator(t, f)

	n := 0
	stats, err := o.Run(context.Background(), models.SearchConfig{Term: "nike"}, func(models.RawListing) bool {
		n++
		return n < 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, StopConsumer, stats.Stop)
}

func TestRun_CancelledBetweenPages(t *testing.T) {
	f := &pageFetcher{pages: []string{resultsPage(2, 1), resultsPage(0, 2)}}
	o, _ := newTestOrchestrator(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	var out []models.RawListing
	stats, err := o.Run(ctx, models.SearchConfig{Term: "nike", MaxPages: 3}, func(r models.RawListing) bool {
		out = append(out, r)
		cancel()
		return true
	})
	require.NoError(t, err)

	assert.Len(t, out, 1)
	assert.Equal(t, StopCancelled, stats.Stop)
	assert.Len(t, f.urls, 1)
}

func TestRun_CancelledBeforeFirstPage(t *testing.T) {
	f := &pageFetcher{pages: []string{resultsPage(0, 1)}}
	o, _ := newTestOrchestrator(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := o.Run(ctx, models.SearchConfig{Term: "nike"}, func(models.RawListing) bool { return true })
	assert.ErrorIs(t, err, ErrNoPages)
	assert.Equal(t, StopCancelled, stats.Stop)
	assert.Empty(t, f.urls)
}

// ctxFetcher cancela o contexto da execução durante a busca e registra
// se o contexto recebido pela busca foi cancelado junto
type ctxFetcher struct {
	cancel    context.CancelFunc
	cancelled bool
}

func (f *ctxFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.cancel()
	f.cancelled = ctx.Err() != nil
	return []byte(resultsPage(2, 1, 2)), nil
}

func TestRun_FetchInFlightSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &ctxFetcher{cancel: cancel}
	o, _ := newTestOrchestrator(t, f)

	var out []models.RawListing
	stats, err := o.Run(ctx, models.SearchConfig{Term: "nike", MaxPages: 3}, func(r models.RawListing) bool {
		out = append(out, r)
		return true
	})
	require.NoError(t, err)

	assert.False(t, f.cancelled)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, StopCancelled, stats.Stop)
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
