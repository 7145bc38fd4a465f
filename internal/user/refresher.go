package user

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcloud/autenticador/internal/metrics"
)

type bulkRefresher interface {
	BulkRefresh(ctx context.Context) (RefreshStats, error)
}

// RefresherConfig controla o loop de sincronização em lote.
type RefresherConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Refresher executa a sincronização em lote periodicamente e sob demanda.
// Pedidos feitos durante uma execução em andamento são agrupados em um só.
type Refresher struct {
	svc     bulkRefresher
	locker  Locker
	cfg     RefresherConfig
	logger  zerolog.Logger
	pending chan string

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRefresher(svc bulkRefresher, locker Locker, cfg RefresherConfig, logger zerolog.Logger) *Refresher {
	return &Refresher{
		svc:     svc,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		pending: make(chan string, 1),
		done:    make(chan struct{}),
	}
}

// Start inicia o loop. Safe para chamar múltiplas vezes.
func (r *Refresher) Start(parent context.Context) {
	r.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		r.cancel = cancel
		go r.runLoop(ctx)
	})
}

// Stop encerra o loop e aguarda a execução corrente terminar.
func (r *Refresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Trigger enfileira uma execução sem bloquear. Retorna false se já havia uma pendente.
func (r *Refresher) Trigger(reason string) bool {
	select {
	case r.pending <- reason:
		return true
	default:
		return false
	}
}

func (r *Refresher) runLoop(ctx context.Context) {
	defer close(r.done)

	var tick <-chan time.Time
	if r.cfg.Enabled {
		interval := r.cfg.Interval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
		r.logger.Info().Dur("interval", interval).Msg("refresh: loop iniciado")
	} else {
		r.logger.Info().Msg("refresh: execução periódica desabilitada, apenas sob demanda")
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("refresh: loop encerrado")
			return
		case <-tick:
			r.RunOnce(ctx, "schedule")
		case reason := <-r.pending:
			r.RunOnce(ctx, reason)
		}
	}
}

// RunOnce executa uma sincronização em lote sob o lock distribuído. Se outra réplica
// detém o lock, a execução é pulada.
func (r *Refresher) RunOnce(ctx context.Context, reason string) (RefreshStats, bool) {
	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx)
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Msg("refresh: lock indisponível, executando sem coordenação")
		case !ok:
			metrics.RefreshRuns.WithLabelValues(reason, "skipped").Inc()
			r.logger.Debug().Str("trigger", reason).Msg("refresh: outra réplica em execução")
			return RefreshStats{}, false
		default:
			defer release()
		}
	}

	timer := time.Now()
	stats, err := r.refresh(ctx)
	metrics.RefreshDuration.Observe(time.Since(timer).Seconds())
	if err != nil {
		metrics.RefreshRuns.WithLabelValues(reason, "error").Inc()
		r.logger.Error().Err(err).Str("trigger", reason).Msg("refresh: execução falhou")
		return stats, false
	}

	metrics.RefreshRuns.WithLabelValues(reason, "ok").Inc()
	r.logger.Info().
		Str("trigger", reason).
		Int("fetched", stats.Fetched).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("unchanged", stats.Unchanged).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int64("took_ms", stats.TookMS).
		Msg("refresh: concluído")
	return stats, true
}

// refresh converte um pânico da sincronização em erro para o loop seguir ativo.
func (r *Refresher) refresh(ctx context.Context) (stats RefreshStats, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("refresh: pânico recuperado")
			err = fmt.Errorf("refresh: pânico: %v", p)
		}
	}()
	return r.svc.BulkRefresh(ctx)
}
