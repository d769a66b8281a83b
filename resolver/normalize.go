package resolver

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// NormalizeURL приводит URL контента к ключу поиска: схема, хост, строка
// запроса и фрагмент отбрасываются, остается только очищенный путь.
// Инвариант: два URL, указывающие на один и тот же сохраненный файл,
// дают одинаковый ключ. Некорректный вход - ошибка, конвейер короткого
// замыкает его в "не найдено" не трогая ни один тир.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty lookup url")
	}

	if strings.ContainsAny(raw, " \t\n") {
		return "", fmt.Errorf("lookup url contains whitespace")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed lookup url: %w", err)
	}

	// Схемы, не адресующие файлы, отвергаются сразу
	switch u.Scheme {
	case "", "http", "https":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	p := u.EscapedPath()
	if p == "" {
		return "", fmt.Errorf("lookup url has no path")
	}

	// Протокольно-относительные и схемные URL несут хост - отбрасываем
	// его вместе со схемой. Относительный путь приводим к абсолютному.
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	// Схлопываем дубли слэшей и ./.. сегменты
	p = path.Clean(p)

	if p == "/" || p == "." {
		return "", fmt.Errorf("lookup url does not address a file")
	}

	return p, nil
}
