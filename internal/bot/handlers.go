package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"bot-vinted/internal/database"
	"bot-vinted/internal/models"
	"bot-vinted/internal/monitor"
	"bot-vinted/internal/scraper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Reply é a resposta de um comando
type Reply struct {
	Text string
	HTML bool
}

func text(format string, a ...any) Reply {
	return Reply{Text: fmt.Sprintf(format, a...)}
}

// Handler atende os comandos recebidos pelo bot
type Handler struct {
	api     *tgbotapi.BotAPI
	db      *database.DB
	monitor *monitor.Monitor
	filters *scraper.FilterCatalog

	wg sync.WaitGroup // comandos em andamento
}

// NewHandler cria o atendente de comandos
func NewHandler(api *tgbotapi.BotAPI, db *database.DB, mon *monitor.Monitor, filters *scraper.FilterCatalog) *Handler {
	if filters == nil {
		filters = scraper.DefaultFilters()
	}
	return &Handler{api: api, db: db, monitor: mon, filters: filters}
}

// Run recebe as atualizações do Telegram até o contexto ser cancelado.
// Só retorna depois que os comandos em andamento terminarem.
func (h *Handler) Run(ctx context.Context) {
	defer h.wg.Wait()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			h.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			// cada mensagem em sua goroutine: /scan pode demorar minutos
			message := update.Message
			h.spawn(func() { h.respond(ctx, message) })
		}
	}
}

// spawn executa fn em uma goroutine acompanhada pelo Run
func (h *Handler) spawn(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

func (h *Handler) respond(ctx context.Context, message *tgbotapi.Message) {
	command, _ := splitCommand(message.Text)
	if command == "/scan" || command == "/reconcile" {
		h.send(message.Chat.ID, Reply{Text: "⏳ Executando, aguarde..."})
	}

	reply := h.Execute(ctx, message.Chat.ID, message.Text)
	if reply.Text == "" {
		return
	}
	h.send(message.Chat.ID, reply)
}

func (h *Handler) send(chatID int64, reply Reply) {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.DisableWebPagePreview = true
	if reply.HTML {
		msg.ParseMode = "HTML"
	}
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("[bot] erro ao enviar mensagem: %v", err)
		if reply.HTML {
			// Tentar sem formatação se houver erro
			msg.ParseMode = ""
			if _, err := h.api.Send(msg); err != nil {
				log.Printf("[bot] erro ao enviar mensagem sem formatação: %v", err)
			}
		}
	}
}

// Execute interpreta um comando e retorna a resposta. Textos que não são
// comandos retornam uma resposta vazia.
func (h *Handler) Execute(ctx context.Context, chatID int64, message string) Reply {
	command, args := splitCommand(message)
	if !strings.HasPrefix(command, "/") {
		return Reply{}
	}

	// Comandos públicos (não precisam de autorização)
	if command == "/start" || command == "/help" {
		return helpReply()
	}

	settings := h.monitor.Settings(ctx)
	if !authorized(settings.TelegramChatID, chatID) {
		return text("Você não está autorizado a usar este bot.")
	}

	switch command {
	case "/searches":
		return h.handleListSearches(ctx)
	case "/addsearch":
		return h.handleAddSearch(ctx, args, settings)
	case "/delsearch":
		return h.handleDeleteSearch(ctx, args)
	case "/scan":
		return h.handleScan(ctx, args, settings)
	case "/rules":
		return h.handleListRules(ctx)
	case "/addrule":
		return h.handleAddRule(ctx, args)
	case "/delrule":
		return h.handleDeleteRule(ctx, args)
	case "/rule":
		return h.handleToggleRule(ctx, args)
	case "/runs":
		return h.handleRuns(ctx)
	case "/deals":
		return h.handleDeals(ctx, args)
	case "/reconcile":
		return h.handleReconcile(ctx)
	case "/filters":
		return h.handleFilters(args)
	case "/set":
		return h.handleSet(ctx, args, settings)
	default:
		return text("Comando não reconhecido. Use /help para ver os comandos disponíveis.")
	}
}

func helpReply() Reply {
	return Reply{HTML: true, Text: `🤖 <b>Monitor de Anúncios Vinted</b>

<b>Buscas</b>
<b>/searches</b> - Listar buscas salvas
<b>/addsearch</b> term=...; brand=...; min=...; max=...; sizes=L,XL; conditions=Muy bueno; colors=Negro; categories=Hombre; pages=3; items=60
Exemplo: /addsearch term=sudadera; brand=Nike; max=25; sizes=L
<b>/delsearch &lt;id&gt;</b> - Remover busca e seus anúncios
<b>/scan [id]</b> - Executar uma busca (ou todas) agora
<b>/filters [grupo]</b> - Rótulos aceitos em sizes, conditions, colors e categories

<b>Alertas</b>
<b>/rules</b> - Listar regras
<b>/addrule</b> name=...; brands=Nike,Adidas; max=50; discount=30; z=-2
<b>/rule &lt;id&gt; on|off</b> - Ativar ou desativar uma regra
<b>/delrule &lt;id&gt;</b> - Remover regra

<b>Catálogo</b>
<b>/deals [id]</b> - Anúncios ativos bem abaixo da média
<b>/runs</b> - Últimas execuções
<b>/reconcile</b> - Verificar agora anúncios vendidos

<b>/set [chave valor]</b> - Ver ou alterar configurações
<b>/help</b> - Mostrar esta mensagem de ajuda`}
}

func (h *Handler) handleListSearches(ctx context.Context) Reply {
	searches, err := h.db.ListSearches(ctx)
	if err != nil {
		return text("❌ Erro ao listar buscas: %v", err)
	}
	if len(searches) == 0 {
		return text("📋 Nenhuma busca salva. Use /addsearch para criar uma.")
	}

	var b strings.Builder
	b.WriteString("📋 <b>Buscas salvas:</b>\n\n")
	for _, s := range searches {
		b.WriteString(formatSearch(s))
		b.WriteString("\n")
	}
	return Reply{Text: b.String(), HTML: true}
}

func formatSearch(s models.SearchConfig) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🆔 <b>ID: %d</b> - %s\n", s.ID, escapeHTML(s.Term)))
	if s.Brand != "" {
		b.WriteString(fmt.Sprintf("🏷 Marca: %s\n", escapeHTML(s.Brand)))
	}
	if s.MinPrice > 0 || s.MaxPrice > 0 {
		b.WriteString(fmt.Sprintf("💰 Preço: %s a %s\n", formatBound(s.MinPrice), formatBound(s.MaxPrice)))
	}
	filters := []struct {
		label  string
		values []string
	}{
		{"Tamanhos", s.Sizes},
		{"Estados", s.Conditions},
		{"Cores", s.Colors},
		{"Categorias", s.Categories},
	}
	for _, f := range filters {
		if len(f.values) > 0 {
			b.WriteString(fmt.Sprintf("🔎 %s: %s\n", f.label, escapeHTML(strings.Join(f.values, ", "))))
		}
	}
	b.WriteString(fmt.Sprintf("📄 Até %d páginas / %d anúncios\n", s.MaxPages, s.MaxItems))
	if s.LastRun.IsZero() {
		b.WriteString("🕐 Última execução: Nunca\n")
	} else {
		b.WriteString(fmt.Sprintf("🕐 Última execução: %s\n", s.LastRun.Local().Format("02/01/2006 15:04")))
	}
	return b.String()
}

func formatBound(v float64) string {
	if v <= 0 {
		return "—"
	}
	return fmt.Sprintf("%.2f €", v)
}

func (h *Handler) handleAddSearch(ctx context.Context, args string, settings models.Settings) Reply {
	parsed, err := parseArgs(args)
	if err == nil {
		var s models.SearchConfig
		if s, err = parseSearch(parsed); err == nil {
			return h.createSearch(ctx, s, settings)
		}
	}
	return text("❌ %v\n\nUso: /addsearch term=sudadera; brand=Nike; max=25; sizes=L", err)
}

func (h *Handler) createSearch(ctx context.Context, s models.SearchConfig, settings models.Settings) Reply {
	id, err := h.db.CreateSearch(ctx, s, settings.MaxSearches)
	if errors.Is(err, database.ErrSearchLimit) {
		return text("❌ Limite de %d buscas atingido. Remova uma com /delsearch.", settings.MaxSearches)
	}
	if err != nil {
		return text("❌ Erro ao salvar busca: %v", err)
	}
	s.ID = id

	response := "✅ Busca salva!\n\n" + formatSearch(s)
	if unknown := unknownLabels(h.filters, s); len(unknown) > 0 {
		response += fmt.Sprintf("\n⚠️ Filtros não reconhecidos serão ignorados: %s\nUse /filters para ver os rótulos aceitos.", escapeHTML(strings.Join(unknown, ", ")))
	}
	return Reply{Text: response, HTML: true}
}

func (h *Handler) handleDeleteSearch(ctx context.Context, args string) Reply {
	id, err := parseID(args)
	if err != nil {
		return text("❌ %v.\n\nUso: /delsearch <id>", err)
	}
	if err := h.db.DeleteSearch(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return text("❌ Busca não encontrada.")
		}
		return text("❌ Erro ao remover busca: %v", err)
	}
	return text("✅ Busca %d removida, junto com seus anúncios.", id)
}

func (h *Handler) handleScan(ctx context.Context, args string, settings models.Settings) Reply {
	if args == "" {
		runs := h.monitor.ScanAll(ctx)
		if len(runs) == 0 {
			return text("📋 Nenhuma busca executada.")
		}
		var b strings.Builder
		for _, run := range runs {
			b.WriteString(formatRun(run))
			b.WriteString("\n")
		}
		return text("%s", b.String())
	}

	id, err := parseID(args)
	if err != nil {
		return text("❌ %v.\n\nUso: /scan [id]", err)
	}
	search, err := h.db.GetSearch(ctx, id)
	if err != nil {
		return text("❌ Busca não encontrada.")
	}

	run, err := h.monitor.ScanSearch(ctx, search, settings)
	if errors.Is(err, monitor.ErrScanInProgress) {
		return text("⏳ A busca %d já está em execução.", id)
	}
	return text("%s", formatRun(run))
}

func formatRun(run models.RunSummary) string {
	icon := "✅"
	switch run.Status {
	case models.RunPartial:
		icon = "⚠️"
	case models.RunFailed:
		icon = "❌"
	}
	s := fmt.Sprintf("%s Busca %d (%s): %d páginas, %d encontrados, %d novos, %d atualizados, %d alertas",
		icon, run.SearchID, run.Status, run.Pages, run.Found, run.New, run.Updated, run.Alerts)
	if run.Errors > 0 {
		s += fmt.Sprintf(", %d erros", run.Errors)
	}
	if run.Error != "" {
		s += "\nErro: " + run.Error
	}
	return s
}

func (h *Handler) handleListRules(ctx context.Context) Reply {
	rules, err := h.db.ListRules(ctx, false)
	if err != nil {
		return text("❌ Erro ao listar regras: %v", err)
	}
	if len(rules) == 0 {
		return text("📋 Nenhuma regra de alerta. Use /addrule para criar uma.")
	}

	var b strings.Builder
	b.WriteString("🔔 <b>Regras de alerta:</b>\n\n")
	for _, r := range rules {
		status := "✅"
		if !r.Active {
			status = "⏸"
		}
		b.WriteString(fmt.Sprintf("%s <b>ID: %d</b> - %s\n", status, r.ID, escapeHTML(r.Name)))
		if len(r.Brands) > 0 {
			b.WriteString(fmt.Sprintf("🏷 Marcas: %s\n", escapeHTML(r.BrandList())))
		}
		if r.MaxPrice > 0 {
			b.WriteString(fmt.Sprintf("💰 Até %.2f €\n", r.MaxPrice))
		}
		if r.MinDiscount > 0 {
			b.WriteString(fmt.Sprintf("📉 Desconto mínimo: %.1f%%\n", r.MinDiscount))
		}
		if r.MaxZ < 0 {
			b.WriteString(fmt.Sprintf("📉 z-score até %.2f\n", r.MaxZ))
		}
		b.WriteString("\n")
	}
	return Reply{Text: b.String(), HTML: true}
}

func (h *Handler) handleAddRule(ctx context.Context, args string) Reply {
	parsed, err := parseArgs(args)
	if err != nil {
		return text("❌ %v\n\nUso: /addrule name=nike barata; brands=Nike; max=20", err)
	}
	rule, err := parseRule(parsed)
	if err != nil {
		return text("❌ %v\n\nUso: /addrule name=nike barata; brands=Nike; max=20", err)
	}

	id, err := h.db.CreateRule(ctx, rule)
	if err != nil {
		return text("❌ Erro ao salvar regra: %v", err)
	}
	return text("✅ Regra %d (%s) criada.", id, rule.Name)
}

func (h *Handler) handleDeleteRule(ctx context.Context, args string) Reply {
	id, err := parseID(args)
	if err != nil {
		return text("❌ %v.\n\nUso: /delrule <id>", err)
	}
	if err := h.db.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return text("❌ Regra não encontrada.")
		}
		return text("❌ Erro ao remover regra: %v", err)
	}
	return text("✅ Regra %d removida.", id)
}

func (h *Handler) handleToggleRule(ctx context.Context, args string) Reply {
	parts := strings.Fields(args)
	if len(parts) != 2 || (parts[1] != "on" && parts[1] != "off") {
		return text("❌ Formato incorreto.\n\nUso: /rule <id> on|off")
	}
	id, err := parseID(parts[0])
	if err != nil {
		return text("❌ %v.", err)
	}

	active := parts[1] == "on"
	if err := h.db.SetRuleActive(ctx, id, active); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return text("❌ Regra não encontrada.")
		}
		return text("❌ Erro ao atualizar regra: %v", err)
	}
	if active {
		return text("✅ Regra %d ativada.", id)
	}
	return text("⏸ Regra %d desativada.", id)
}

func (h *Handler) handleRuns(ctx context.Context) Reply {
	runs, err := h.db.RecentRuns(ctx, 10)
	if err != nil {
		return text("❌ Erro ao listar execuções: %v", err)
	}
	if len(runs) == 0 {
		return text("📋 Nenhuma execução registrada.")
	}

	var b strings.Builder
	b.WriteString("🕐 Últimas execuções:\n\n")
	for _, run := range runs {
		b.WriteString(run.StartedAt.Local().Format("02/01 15:04"))
		b.WriteString(" ")
		b.WriteString(formatRun(run))
		b.WriteString("\n")
	}
	return text("%s", b.String())
}

func (h *Handler) handleDeals(ctx context.Context, args string) Reply {
	var searchID int64
	if args != "" {
		id, err := parseID(args)
		if err != nil {
			return text("❌ %v.\n\nUso: /deals [id]", err)
		}
		searchID = id
	}

	deals, err := h.monitor.Deals(ctx, searchID, 10)
	if errors.Is(err, database.ErrNotFound) {
		return text("❌ Busca não encontrada.")
	}
	if err != nil {
		return text("❌ Erro ao calcular ofertas: %v", err)
	}
	if len(deals) == 0 {
		return text("📋 Nenhum anúncio ativo abaixo de %.0f%% da média.", monitor.DealRatio*100)
	}

	var b strings.Builder
	b.WriteString("📉 <b>Ofertas abaixo da média:</b>\n\n")
	for _, d := range deals {
		b.WriteString(fmt.Sprintf("📦 %s\n", escapeHTML(d.Listing.Title)))
		b.WriteString(fmt.Sprintf("💰 <b>%.2f €</b> (média %.2f €, %.1f%% abaixo)\n", d.Listing.Price, d.Mean, d.Discount))
		b.WriteString(fmt.Sprintf("🔗 %s\n\n", d.Listing.URL))
	}
	return Reply{Text: b.String(), HTML: true}
}

func (h *Handler) handleReconcile(ctx context.Context) Reply {
	res := h.monitor.Reconcile(ctx)
	return text("🔄 %d anúncios verificados: %d vendidos, %d removidos, %d ativos.", res.Checked, res.Sold, res.Removed, res.Active)
}

func (h *Handler) handleFilters(args string) Reply {
	groups := []string{scraper.GroupSize, scraper.GroupCondition, scraper.GroupColor, scraper.GroupCategory}
	if args != "" {
		groups = []string{strings.ToLower(args)}
	}

	var b strings.Builder
	for _, g := range groups {
		labels := h.filters.Labels(g)
		if len(labels) == 0 {
			return text("❌ Grupo desconhecido: %s", args)
		}
		b.WriteString(fmt.Sprintf("🔎 %s: %s\n", g, strings.Join(labels, ", ")))
	}
	return text("%s", b.String())
}

func (h *Handler) handleSet(ctx context.Context, args string, settings models.Settings) Reply {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return text("%s", formatSettings(settings))
	}
	if len(parts) != 2 {
		return text("❌ Formato incorreto.\n\nUso: /set <chave> <valor>\nChaves: %s", strings.Join(models.SettingKeys, ", "))
	}

	key, value := strings.ToLower(parts[0]), parts[1]
	if err := settings.Apply(key, value); err != nil {
		if errors.Is(err, models.ErrUnknownSetting) {
			return text("❌ Chave desconhecida: %s\nChaves: %s", key, strings.Join(models.SettingKeys, ", "))
		}
		return text("❌ %v", err)
	}
	if err := h.db.SetSetting(ctx, key, value); err != nil {
		return text("❌ Erro ao salvar configuração: %v", err)
	}
	return text("✅ %s = %s", key, value)
}

func formatSettings(s models.Settings) string {
	return fmt.Sprintf("⚙️ Configurações:\n\n"+
		"%s = %g\n%s = %t\n%s = %d\n%s = %d\n%s = %d\n%s = %d\n%s = %g",
		models.SettingScanIntervalHours, s.ScanInterval.Hours(),
		models.SettingAutoScanEnabled, s.AutoScanEnabled,
		models.SettingTelegramChatID, s.TelegramChatID,
		models.SettingReconcileBatchSize, s.ReconcileBatchSize,
		models.SettingBaselineWindow, s.BaselineWindow,
		models.SettingMaxSearches, s.MaxSearches,
		models.SettingZThreshold, s.ZThreshold,
	)
}
