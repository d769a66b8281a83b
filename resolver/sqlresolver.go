package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"

	// Драйверы реляционного хранилища медиатеки
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"medialookup/logger"
)

// SQLResolverConfig содержит параметры авторитетного резолвера
type SQLResolverConfig struct {
	// Enabled определяет, доступен ли авторитетный фолбэк вообще
	Enabled bool `yaml:"enabled"`

	// Driver - имя драйвера: mysql или sqlite3
	Driver string `yaml:"driver"`

	// DSN - строка подключения драйвера
	DSN string `yaml:"dsn"`

	// Table - таблица медиатеки
	Table string `yaml:"table"`

	// PathColumn - колонка с атрибутом пути файла
	PathColumn string `yaml:"path_column"`

	// IDColumn - колонка идентификатора ресурса
	IDColumn string `yaml:"id_column"`
}

// DefaultSQLResolverConfig возвращает конфигурацию по умолчанию
func DefaultSQLResolverConfig() SQLResolverConfig {
	return SQLResolverConfig{
		Enabled:    true,
		Driver:     "sqlite3",
		DSN:        "medialookup.db",
		Table:      "media_files",
		PathColumn: "path",
		IDColumn:   "id",
	}
}

// Validate проверяет корректность конфигурации
func (c *SQLResolverConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Driver != "mysql" && c.Driver != "sqlite3" {
		return fmt.Errorf("driver must be one of: mysql, sqlite3")
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn cannot be empty")
	}
	if c.Table == "" || c.PathColumn == "" || c.IDColumn == "" {
		return fmt.Errorf("table, path_column and id_column cannot be empty")
	}

	return nil
}

// SQLResolver - справочная реализация авторитетного резолвера: скан
// реляционного хранилища медиатеки по атрибуту пути. Медленный, но
// всегда корректный; в конвейер обратно не обращается.
type SQLResolver struct {
	db     *sql.DB
	config SQLResolverConfig

	exactQuery string
	scanQuery  string
}

// NewSQLResolver открывает подключение к хранилищу медиатеки
func NewSQLResolver(config SQLResolverConfig) (*SQLResolver, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolver config: %w", err)
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open media store (%s): %w", config.Driver, err)
	}

	logger.Info("Authoritative SQL resolver ready (driver: %s, table: %s)", config.Driver, config.Table)

	return &SQLResolver{
		db:     db,
		config: config,
		exactQuery: fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1",
			config.IDColumn, config.Table, config.PathColumn),
		scanQuery: fmt.Sprintf("SELECT %s FROM %s WHERE %s LIKE ? ORDER BY %s LIMIT 1",
			config.IDColumn, config.Table, config.PathColumn, config.IDColumn),
	}, nil
}

// Resolve ищет ресурс по нормализованному ключу: сначала точное
// совпадение атрибута пути, затем скан по имени файла - атрибут может
// храниться без ведущих каталогов.
func (r *SQLResolver) Resolve(ctx context.Context, key string) (uint64, bool, error) {
	var id uint64

	err := r.db.QueryRowContext(ctx, r.exactQuery, key).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("media store query failed: %w", err)
	}

	base := path.Base(key)
	if base == "/" || base == "." {
		return 0, false, nil
	}

	err = r.db.QueryRowContext(ctx, r.scanQuery, "%/"+base).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("media store scan failed: %w", err)
	}

	return id, true, nil
}

// Close закрывает подключение к хранилищу
func (r *SQLResolver) Close() error {
	return r.db.Close()
}
