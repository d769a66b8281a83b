package stats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"medialookup/logger"
)

// SnapshotKey - зарезервированный ключ, под которым снимок статистики
// хранится в общем кэше для межпроцессной видимости
const SnapshotKey = "stats:snapshot"

// BlobStore - минимальный контракт хранилища для сохранения снимка.
// Реализуется бэкендами кэша.
type BlobStore interface {
	SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Persister периодически сохраняет снимок агрегатора в общее хранилище.
// Счетчики остаются процессными атомиками; сохраненный снимок - последняя
// запись побеждает, что допустимо для статистики.
type Persister struct {
	agg   *Aggregator
	store BlobStore
	cron  *cron.Cron
	spec  string
}

// NewPersister создает планировщик сохранения. spec - выражение cron
// (поддерживается форма "@every 1m").
func NewPersister(agg *Aggregator, store BlobStore, spec string) *Persister {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Persister{
		agg:   agg,
		store: store,
		cron:  cron.New(),
		spec:  spec,
	}
}

// Start запускает периодическое сохранение
func (p *Persister) Start() error {
	_, err := p.cron.AddFunc(p.spec, func() {
		p.persistOnce(context.Background())
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	logger.Info("Stats persister started (schedule: %s)", p.spec)
	return nil
}

// Stop останавливает планировщик и сохраняет финальный снимок
func (p *Persister) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.persistOnce(context.Background())
	logger.Info("Stats persister stopped")
}

// persistOnce сериализует текущий снимок и кладет его в хранилище
func (p *Persister) persistOnce(ctx context.Context) {
	snap := p.agg.Snapshot()

	data, err := json.Marshal(snap)
	if err != nil {
		logger.Error("Failed to marshal stats snapshot: %v", err)
		return
	}

	// Снимок живет сутки: устаревшая статистика бесполезна
	if err := p.store.SetRaw(ctx, SnapshotKey, data, 24*time.Hour); err != nil {
		logger.Warn("Failed to persist stats snapshot: %v", err)
	}
}
