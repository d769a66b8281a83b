package index

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"medialookup/logger"
)

var (
	metaBucket  = []byte("meta")
	pathsBucket = []byte("paths")

	builtKey   = []byte("built")
	builtAtKey = []byte("built_at")
)

// Config содержит конфигурацию чтения индекса
type Config struct {
	// Path - путь к файлу индекса, поддерживаемому внешним построителем.
	// Пустой путь означает "индекса нет".
	Path string `yaml:"path"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{Path: ""}
}

// Index - точный индекс нормализованный путь -> идентификатор.
// Файл целиком принадлежит внешнему построителю; ядро только читает.
// Отсутствующий или не достроенный индекс - штатная ситуация, а не ошибка:
// конвейер просто пропускает этот тир.
type Index struct {
	db *bolt.DB
}

// Open открывает файл индекса на чтение. Отсутствие файла не ошибка.
func Open(cfg Config) (*Index, error) {
	if cfg.Path == "" {
		return &Index{}, nil
	}

	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		logger.Info("Lookup index file %s does not exist, index tier disabled", cfg.Path)
		return &Index{}, nil
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{
		ReadOnly: true,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		// Испорченный или занятый файл деградирует до "индекса нет"
		logger.Warn("Failed to open lookup index %s, index tier disabled: %v", cfg.Path, err)
		return &Index{}, nil
	}

	logger.Info("Opened lookup index at %s", cfg.Path)
	return &Index{db: db}, nil
}

// Exists сообщает, достроен ли индекс его владельцем.
// Флаг перечитывается на каждый вызов: построитель может пересобрать
// файл между обращениями.
func (i *Index) Exists() bool {
	if i.db == nil {
		return false
	}

	built := false
	err := i.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return nil
		}
		built = string(meta.Get(builtKey)) == "1"
		return nil
	})
	if err != nil {
		return false
	}
	return built
}

// GetByPath возвращает идентификатор по нормализованному пути
func (i *Index) GetByPath(path string) (uint64, bool) {
	if i.db == nil {
		return 0, false
	}

	var id uint64
	found := false
	err := i.db.View(func(tx *bolt.Tx) error {
		paths := tx.Bucket(pathsBucket)
		if paths == nil {
			return nil
		}
		raw := paths.Get([]byte(path))
		if len(raw) == 8 {
			id = binary.BigEndian.Uint64(raw)
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, false
	}
	return id, found
}

// BuiltAt возвращает время последней сборки индекса
func (i *Index) BuiltAt() (time.Time, bool) {
	if i.db == nil {
		return time.Time{}, false
	}

	var ts time.Time
	found := false
	i.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return nil
		}
		raw := meta.Get(builtAtKey)
		if len(raw) == 8 {
			ts = time.Unix(int64(binary.BigEndian.Uint64(raw)), 0)
			found = true
		}
		return nil
	})
	return ts, found
}

// Close закрывает файл индекса
func (i *Index) Close() error {
	if i.db == nil {
		return nil
	}
	return i.db.Close()
}

// WriteFile записывает файл индекса в формате, который читает Open.
// Это сторона контракта внешнего построителя; здесь она нужна фикстурам
// тестов и локальной отладке.
func WriteFile(path string, entries map[string]uint64, built bool) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to create index file %s: %w", path, err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(pathsBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		paths, err := tx.CreateBucket(pathsBucket)
		if err != nil {
			return err
		}
		for p, id := range entries {
			raw := make([]byte, 8)
			binary.BigEndian.PutUint64(raw, id)
			if err := paths.Put([]byte(p), raw); err != nil {
				return err
			}
		}

		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		flag := "0"
		if built {
			flag = "1"
		}
		if err := meta.Put(builtKey, []byte(flag)); err != nil {
			return err
		}
		at := make([]byte, 8)
		binary.BigEndian.PutUint64(at, uint64(time.Now().Unix()))
		return meta.Put(builtAtKey, at)
	})
}
