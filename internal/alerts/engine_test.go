package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"bot-vinted/internal/analytics"
	"bot-vinted/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, text)
	return nil
}

type memoryLedger struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (l *memoryLedger) RecordAlert(_ context.Context, historyID int64, trigger string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	key := fmt.Sprintf("%d/%s", historyID, trigger)
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

func TestMatches_BrandAndMaxPrice(t *testing.T) {
	rule := models.AlertRule{ID: 1, Name: "barato", Brands: []string{"Nike", "Adidas"}, MaxPrice: 50, Active: true}

	assert.True(t, Matches(rule, models.Listing{Brand: "adidas", Price: 40.0}, analytics.Baseline{}))
	assert.False(t, Matches(rule, models.Listing{Brand: "Nike", Price: 60.0}, analytics.Baseline{}))
	assert.False(t, Matches(rule, models.Listing{Brand: "Puma", Price: 10.0}, analytics.Baseline{}))
}

func TestMatches_UnpopulatedConstraintsAreVacuous(t *testing.T) {
	rule := models.AlertRule{ID: 2, Name: "tudo", Active: true}
	assert.True(t, Matches(rule, models.Listing{Brand: "", Price: 999}, analytics.Baseline{}))
}

func TestMatches_DiscountAndZ(t *testing.T) {
	baseline := analytics.Baseline{Mean: 100, StdDev: 20}

	discount := models.AlertRule{MinDiscount: 30, Active: true}
	assert.True(t, Matches(discount, models.Listing{Price: 70}, baseline))
	assert.False(t, Matches(discount, models.Listing{Price: 75}, baseline))
	assert.False(t, Matches(discount, models.Listing{Price: 10}, analytics.Baseline{}), "sem média não há desconto")

	z := models.AlertRule{MaxZ: -2, Active: true}
	assert.True(t, Matches(z, models.Listing{Price: 60}, baseline))
	assert.False(t, Matches(z, models.Listing{Price: 61}, baseline))
}

func TestEvaluate_Statistical(t *testing.T) {
	baseline := analytics.Baseline{Mean: 100, StdDev: 20}

	alerts := Evaluate(models.Listing{ID: 1, Price: 60}, baseline, nil, DefaultZThreshold)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.TriggerStatistical, alerts[0].Trigger)
	assert.InDelta(t, -2.0, alerts[0].ZScore, 1e-9)

	assert.Empty(t, Evaluate(models.Listing{ID: 2, Price: 95}, baseline, nil, DefaultZThreshold))
}

func TestEvaluate_NoBaselineNoStatistical(t *testing.T) {
	assert.Empty(t, Evaluate(models.Listing{ID: 1, Price: 1}, analytics.Baseline{}, nil, DefaultZThreshold))
}

func TestEvaluate_BothMechanismsFire(t *testing.T) {
	rules := []models.AlertRule{
		{ID: 1, Name: "nike", Brands: []string{"Nike"}, Active: true},
		{ID: 2, Name: "inativa", Active: false},
		{ID: 3, Name: "adidas", Brands: []string{"Adidas"}, Active: true},
	}
	listing := models.Listing{ID: 7, Brand: "NIKE", Price: 60}

	alerts := Evaluate(listing, analytics.Baseline{Mean: 100, StdDev: 20}, rules, DefaultZThreshold)
	require.Len(t, alerts, 2)
	assert.Equal(t, "rule:1", alerts[0].Trigger)
	assert.Equal(t, "nike", alerts[0].RuleName)
	assert.Equal(t, models.TriggerStatistical, alerts[1].Trigger)
}

func TestEvaluate_IgnoresUnknownPrice(t *testing.T) {
	rules := []models.AlertRule{{ID: 1, Active: true}}
	assert.Empty(t, Evaluate(models.Listing{Price: 0}, analytics.Baseline{Mean: 100, StdDev: 20}, rules, DefaultZThreshold))
}

func TestDispatch_AtMostOncePerEvent(t *testing.T) {
	notifier := &recordingNotifier{}
	engine := NewEngine(notifier, &memoryLedger{}, DefaultZThreshold)
	alerts := []models.Alert{
		{Trigger: "rule:1", RuleName: "r", Listing: models.Listing{ID: 1, Title: "Sudadera", Price: 20, URL: "https://x/items/1"}},
		{Trigger: models.TriggerStatistical, Listing: models.Listing{ID: 1, Title: "Sudadera", Price: 20, URL: "https://x/items/1"}, Mean: 50},
	}

	assert.Equal(t, 2, engine.Dispatch(context.Background(), 10, alerts))
	assert.Equal(t, 0, engine.Dispatch(context.Background(), 10, alerts), "mesmo evento não reenvia")
	assert.Equal(t, 2, engine.Dispatch(context.Background(), 11, alerts), "novo evento de preço envia de novo")
	assert.Len(t, notifier.messages, 4)
}

func TestDispatch_ConcurrentCallersSendOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	engine := NewEngine(notifier, &memoryLedger{}, DefaultZThreshold)
	alerts := []models.Alert{{Trigger: "rule:1", Listing: models.Listing{ID: 1, Price: 20}}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Dispatch(context.Background(), 5, alerts)
		}()
	}
	wg.Wait()

	assert.Len(t, notifier.messages, 1)
}

func TestDispatch_FailuresAreSwallowed(t *testing.T) {
	engine := NewEngine(&recordingNotifier{err: errors.New("telegram fora do ar")}, &memoryLedger{}, DefaultZThreshold)
	alerts := []models.Alert{{Trigger: "rule:1", Listing: models.Listing{ID: 1, Price: 20}}}

	assert.Equal(t, 0, engine.Dispatch(context.Background(), 1, alerts))

	ledgerDown := NewEngine(&recordingNotifier{}, &memoryLedger{err: errors.New("db")}, DefaultZThreshold)
	assert.Equal(t, 0, ledgerDown.Dispatch(context.Background(), 1, alerts))
}

func TestFormat(t *testing.T) {
	msg := Format(models.Alert{
		Trigger:  "rule:3",
		RuleName: "nike barata",
		Listing:  models.Listing{Title: "Sudadera", Brand: "Nike", Size: "L", Price: 19.5, URL: "https://www.vinted.es/items/1"},
		Mean:     40,
		ZScore:   -1.75,
	})

	assert.Contains(t, msg, "nike barata")
	assert.Contains(t, msg, "19.50 €")
	assert.Contains(t, msg, "z = -1.75")
	assert.Contains(t, msg, "https://www.vinted.es/items/1")
}

func TestNewEngine_DefaultThreshold(t *testing.T) {
	e := NewEngine(&recordingNotifier{}, &memoryLedger{}, 0)
	assert.Equal(t, DefaultZThreshold, e.zThreshold)
}
