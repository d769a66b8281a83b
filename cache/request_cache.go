package cache

import "sync"

// RequestCache - кэш времени жизни одного входящего запроса. Дедуплицирует
// повторные разрешения одного URL внутри запроса и умирает вместе с ним:
// никогда не продвигается в долгоживущее хранилище и не разделяется между
// запросами. Отрицательные результаты здесь не хранятся.
//
// Мьютекс нужен обработчикам, разрешающим несколько URL конкурентно;
// при последовательной обработке он ничего не стоит.
type RequestCache struct {
	mu      sync.Mutex
	entries map[string]uint64

	// Собственные счетчики дедупликации, отдельные от межзапросной
	// статистики агрегатора
	lookups uint64
	hits    uint64
}

// NewRequestCache создает кэш для одного запроса
func NewRequestCache() *RequestCache {
	return &RequestCache{
		entries: make(map[string]uint64),
	}
}

// Get возвращает идентификатор, найденный ранее в этом же запросе
func (c *RequestCache) Get(key string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lookups++
	id, found := c.entries[key]
	if found {
		c.hits++
	}
	return id, found
}

// Set запоминает найденный идентификатор до конца запроса
func (c *RequestCache) Set(key string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = id
}

// Delete убирает запись (используется инвалидатором для живого запроса)
func (c *RequestCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len возвращает количество записей
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats возвращает счетчики дедупликации: сколько обращений и сколько
// из них обслужено без выхода за пределы запроса
func (c *RequestCache) Stats() (lookups, hits uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups, c.hits
}
