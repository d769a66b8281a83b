package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// DebugSink - файловый приемник отладочных записей о разрешении URL.
// Каждое разрешение дает одну строку: url, тир, найденный id (или "-"),
// латентность в микросекундах. Ошибки записи никогда не возвращаются
// вызывающему - срыв отладочного лога не должен ломать горячий путь.
type DebugSink struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	maxBytes int64
	written  int64
	failed   bool // запись уже падала, повторно не ругаемся в лог
}

// NewDebugSink открывает (или создает) файл отладочного лога.
// maxBytes ограничивает размер файла; 0 означает "без ограничения".
func NewDebugSink(path string, maxBytes int64) (*DebugSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat debug log %s: %w", path, err)
	}

	return &DebugSink{
		path:     path,
		file:     f,
		maxBytes: maxBytes,
		written:  info.Size(),
	}, nil
}

// Log записывает одну строку о завершенном разрешении.
// Никогда не возвращает ошибку: сбой фиксируется один раз в основном логе.
func (s *DebugSink) Log(url, tier string, id uint64, found bool, latencyMicros uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}

	idField := "-"
	if found {
		idField = fmt.Sprintf("%d", id)
	}

	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%dus\n",
		time.Now().UTC().Format(time.RFC3339), url, tier, idField, latencyMicros)

	if s.maxBytes > 0 && s.written+int64(len(line)) > s.maxBytes {
		if err := s.rotateLocked(); err != nil {
			s.noteFailure(err)
			return
		}
	}

	n, err := s.file.WriteString(line)
	s.written += int64(n)
	if err != nil {
		s.noteFailure(err)
	}
}

// Cleanup усекает файл отладочного лога до нуля.
// Обычный публичный метод: вызывается из административного интерфейса.
func (s *DebugSink) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

// Close закрывает файл
func (s *DebugSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// rotateLocked усекает файл и продолжает писать с начала
func (s *DebugSink) rotateLocked() error {
	if s.file == nil {
		return nil
	}
	if err := s.file.Truncate(0); err != nil {
		return err
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return err
	}
	s.written = 0
	s.failed = false
	return nil
}

// noteFailure пишет о сбое в основной лог, но только один раз на инцидент
func (s *DebugSink) noteFailure(err error) {
	if !s.failed {
		Warn("Debug sink write failed (suppressing further reports): %v", err)
		s.failed = true
	}
}
