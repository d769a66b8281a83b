package watchdog

import "time"

// FailureRecord - счетчик сбоев одного ключа внутри скользящего окна.
// Создается первым сбоем; любой успех удаляет запись целиком (полный
// сброс, не декремент - одному успеху доверяем).
type FailureRecord struct {
	Key         string    `json:"key"`
	Count       uint32    `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Watchlisted сообщает, достиг ли счетчик порога наблюдения
func (r FailureRecord) Watchlisted(threshold int) bool {
	return int(r.Count) >= threshold
}

// expired сообщает, вышла ли запись за пределы окна.
// Просроченная запись трактуется как чистая при следующем обращении -
// фонового подметания нет.
func (r FailureRecord) expired(now time.Time, window time.Duration) bool {
	return now.Sub(r.WindowStart) > window
}
