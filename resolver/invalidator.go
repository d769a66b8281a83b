package resolver

import (
	"context"

	"medialookup/cache"
	"medialookup/logger"
)

// ResourceStore - внешнее хранилище ресурсов: по идентификатору отдает
// канонический ключ и ключи всех производных вариантов (например,
// размерных вариантов изображения), перечисленные из собственных
// метаданных ресурса, а не угаданные.
type ResourceStore interface {
	CanonicalKey(ctx context.Context, resourceID uint64) (string, error)
	VariantKeys(ctx context.Context, resourceID uint64) ([]string, error)
}

// Invalidator реагирует на события жизненного цикла ресурса и вычищает
// протухшие записи из общего кэша. Вызывается хранилищем ресурсов на
// создание, изменение и удаление ресурса или его атрибута расположения.
type Invalidator struct {
	backend cache.Backend
	store   ResourceStore // nil, если хранилище ресурсов не сконфигурировано

	// LocationAttributes - атрибуты, изменение которых влияет на
	// расположение файла; прочие изменения кэш не трогают
	locationAttrs map[string]bool
}

// NewInvalidator создает инвалидатор. store может быть nil - тогда
// перечислить варианты нечем и событие лишь логируется.
func NewInvalidator(backend cache.Backend, store ResourceStore, locationAttrs []string) *Invalidator {
	attrs := make(map[string]bool, len(locationAttrs))
	for _, a := range locationAttrs {
		attrs[a] = true
	}
	if len(attrs) == 0 {
		attrs["attached_file"] = true
	}

	return &Invalidator{
		backend:       backend,
		store:         store,
		locationAttrs: attrs,
	}
}

// OnResourceChanged обрабатывает одно событие изменения ресурса.
// changedAttr - имя измененного атрибута; пустая строка означает событие
// жизненного цикла (создание/удаление), которое инвалидирует всегда.
// canonicalURL - канонический URL из самого события; позволяет вычистить
// хотя бы основную запись, когда хранилище ресурсов не сконфигурировано.
// Возвращает список вычищенных ключей, чтобы вызывающий мог вычистить
// и живой кэш своего запроса.
func (i *Invalidator) OnResourceChanged(ctx context.Context, resourceID uint64, changedAttr, canonicalURL string) ([]string, error) {
	if changedAttr != "" && !i.locationAttrs[changedAttr] {
		// Атрибут не влияет на расположение файла - кэш корректен
		logger.Debug("Resource %d attribute %q does not affect location, cache kept", resourceID, changedAttr)
		return nil, nil
	}

	keys := make(map[string]bool)

	if canonicalURL != "" {
		if k, nerr := NormalizeURL(canonicalURL); nerr == nil {
			keys[k] = true
		}
	}

	if i.store == nil {
		if len(keys) == 0 {
			logger.Warn("Resource %d changed but no resource store is configured, cache not invalidated", resourceID)
			return nil, nil
		}
		// Без хранилища варианты перечислить нечем, вычищается только
		// канонический ключ из события
		logger.Warn("Resource %d changed without a resource store, variants not enumerated", resourceID)
	} else {
		canonical, err := i.store.CanonicalKey(ctx, resourceID)
		if err != nil {
			logger.Warn("Failed to resolve canonical key of resource %d: %v", resourceID, err)
		} else if canonical != "" {
			if k, nerr := NormalizeURL(canonical); nerr == nil {
				keys[k] = true
			}
		}

		// Все производные варианты перечисляются из метаданных ресурса
		variants, err := i.store.VariantKeys(ctx, resourceID)
		if err != nil {
			logger.Warn("Failed to enumerate variants of resource %d: %v", resourceID, err)
		}
		for _, v := range variants {
			if k, nerr := NormalizeURL(v); nerr == nil {
				keys[k] = true
			}
		}
	}

	evicted := make([]string, 0, len(keys))
	var lastErr error
	for k := range keys {
		if derr := i.backend.Delete(ctx, k); derr != nil {
			logger.Warn("Failed to evict %s for resource %d: %v", k, resourceID, derr)
			lastErr = derr
			continue
		}
		evicted = append(evicted, k)
	}

	logger.Info("Resource %d changed (attr %q): evicted %d cache entries", resourceID, changedAttr, len(evicted))
	return evicted, lastErr
}
