package stats

import (
	"math"
	"sync/atomic"
	"time"
)

// Counter - имя счетчика агрегатора
type Counter string

const (
	TotalLookups      Counter = "total_lookups"
	SuccessfulLookups Counter = "successful_lookups"
	NotFoundCount     Counter = "not_found_count"
	InvalidInputCount Counter = "invalid_input_count"
	RequestCacheHits  Counter = "request_cache_hits"
	IndexHits         Counter = "index_hits"
	CacheHits         Counter = "cache_hits"
	AuthoritativeHits Counter = "authoritative_hits"
)

// LiveStats - снимок счетчиков с производными показателями.
// Производные поля (success_rate, cache_efficiency) вычисляются в момент
// снятия снимка и никогда не хранятся.
type LiveStats struct {
	TotalLookups      uint64 `json:"total_lookups"`
	SuccessfulLookups uint64 `json:"successful_lookups"`
	NotFoundCount     uint64 `json:"not_found_count"`
	InvalidInputCount uint64 `json:"invalid_input_count"`

	RequestCacheHits  uint64 `json:"request_cache_hits"`
	IndexHits         uint64 `json:"index_hits"`
	CacheHits         uint64 `json:"cache_hits"`
	AuthoritativeHits uint64 `json:"authoritative_hits"`

	// Unix-время первого и последнего разрешения; 0 - разрешений не было
	FirstLookupAt int64 `json:"first_lookup_at"`
	LastLookupAt  int64 `json:"last_lookup_at"`

	// Производные показатели, округленные до одного знака
	SuccessRate     float64 `json:"success_rate"`
	CacheEfficiency float64 `json:"cache_efficiency"`
}

// Aggregator накапливает счетчики разрешений. Все счетчики монотонны до
// вызова Reset. Инкременты атомарны внутри процесса; межпроцессная
// точность не гарантируется и на ней нельзя строить критичные решения.
type Aggregator struct {
	totalLookups      atomic.Uint64
	successfulLookups atomic.Uint64
	notFoundCount     atomic.Uint64
	invalidInputCount atomic.Uint64

	requestCacheHits  atomic.Uint64
	indexHits         atomic.Uint64
	cacheHits         atomic.Uint64
	authoritativeHits atomic.Uint64

	firstLookupUnix atomic.Int64
	lastLookupUnix  atomic.Int64
}

// NewAggregator создает пустой агрегатор
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Increment увеличивает счетчик по имени. Неизвестные имена игнорируются.
func (a *Aggregator) Increment(name Counter) {
	switch name {
	case TotalLookups:
		a.totalLookups.Add(1)
	case SuccessfulLookups:
		a.successfulLookups.Add(1)
	case NotFoundCount:
		a.notFoundCount.Add(1)
	case InvalidInputCount:
		a.invalidInputCount.Add(1)
	case RequestCacheHits:
		a.requestCacheHits.Add(1)
	case IndexHits:
		a.indexHits.Add(1)
	case CacheHits:
		a.cacheHits.Add(1)
	case AuthoritativeHits:
		a.authoritativeHits.Add(1)
	}
}

// MarkLookup фиксирует время первого и последнего разрешения
func (a *Aggregator) MarkLookup(now time.Time) {
	unix := now.Unix()
	a.firstLookupUnix.CompareAndSwap(0, unix)
	a.lastLookupUnix.Store(unix)
}

// Snapshot возвращает снимок счетчиков с вычисленными показателями.
// При total == 0 производные показатели равны 0, а не NaN.
func (a *Aggregator) Snapshot() LiveStats {
	s := LiveStats{
		TotalLookups:      a.totalLookups.Load(),
		SuccessfulLookups: a.successfulLookups.Load(),
		NotFoundCount:     a.notFoundCount.Load(),
		InvalidInputCount: a.invalidInputCount.Load(),
		RequestCacheHits:  a.requestCacheHits.Load(),
		IndexHits:         a.indexHits.Load(),
		CacheHits:         a.cacheHits.Load(),
		AuthoritativeHits: a.authoritativeHits.Load(),
		FirstLookupAt:     a.firstLookupUnix.Load(),
		LastLookupAt:      a.lastLookupUnix.Load(),
	}

	if s.TotalLookups > 0 {
		total := float64(s.TotalLookups)
		s.SuccessRate = round1(float64(s.SuccessfulLookups) / total * 100)
		s.CacheEfficiency = round1(float64(s.CacheHits+s.IndexHits) / total * 100)
	}

	return s
}

// Reset обнуляет все счетчики и отметки времени
func (a *Aggregator) Reset() {
	a.totalLookups.Store(0)
	a.successfulLookups.Store(0)
	a.notFoundCount.Store(0)
	a.invalidInputCount.Store(0)
	a.requestCacheHits.Store(0)
	a.indexHits.Store(0)
	a.cacheHits.Store(0)
	a.authoritativeHits.Store(0)
	a.firstLookupUnix.Store(0)
	a.lastLookupUnix.Store(0)
}

// round1 округляет до одного знака после запятой
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
