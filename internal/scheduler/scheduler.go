package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job é uma tarefa periódica. Recebe um contexto cancelado no Stop.
type Job func(ctx context.Context)

type entry struct {
	id       string
	interval time.Duration
	fn       Job
}

// Scheduler executa tarefas periódicas identificadas por um ID fixo.
// Cada tarefa roda uma vez no início e depois a cada intervalo, sem sobreposição.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []entry
	ids     map[string]bool
	started bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New cria um scheduler vazio
func New() *Scheduler {
	return &Scheduler{ids: make(map[string]bool)}
}

// Register adiciona uma tarefa. Registrar o mesmo ID de novo não tem efeito
// e retorna false. Tarefas registradas depois do Start começam imediatamente.
func (s *Scheduler) Register(id string, interval time.Duration, fn Job) bool {
	if interval <= 0 {
		interval = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[id] {
		log.Printf("[scheduler] tarefa %q já registrada", id)
		return false
	}
	s.ids[id] = true
	e := entry{id: id, interval: interval, fn: fn}
	s.jobs = append(s.jobs, e)

	if s.started && s.cancel != nil {
		s.launch(s.runCtx, e)
	}
	return true
}

// Start inicia as tarefas registradas. Chamadas repetidas são ignoradas.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = ctx
	for _, e := range s.jobs {
		s.launch(ctx, e)
	}
	log.Printf("[scheduler] iniciado com %d tarefas", len(s.jobs))
}

// Stop cancela as tarefas e aguarda as execuções em andamento
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	log.Println("[scheduler] parado")
}

func (s *Scheduler) launch(ctx context.Context, e entry) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, e)
	}()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	log.Printf("[scheduler] tarefa %q a cada %v", e.id, e.interval)

	// executar imediatamente na primeira vez
	s.run(ctx, e)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, e)
		}
	}
}

// run executa a tarefa isolando pânicos
func (s *Scheduler) run(ctx context.Context, e entry) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] pânico na tarefa %q: %v", e.id, r)
		}
	}()

	started := time.Now()
	e.fn(ctx)
	log.Printf("[scheduler] tarefa %q concluída em %v", e.id, time.Since(started).Round(time.Millisecond))
}
