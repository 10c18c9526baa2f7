// Пакет paths — валидация и резолвинг имён папок и файлов
// относительно корня хранилища. Единственная граница доверия:
// все имена из запросов обязаны проходить через Resolver до
// любого обращения к файловой системе.
package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidPath — имя не прошло валидацию (traversal, пустое имя,
// недопустимые символы). Проверяется через errors.Is.
var ErrInvalidPath = errors.New("недопустимое имя пути")

// invalidChars — символы, запрещённые в именах файлов и папок.
// Разделители путей отсекают попытки выхода за пределы одного уровня,
// остальные — недопустимы на целевых файловых системах (Windows/NTFS).
const invalidChars = `/\:*?"<>|`

// Resolver резолвит имена папок/файлов в абсолютные пути внутри
// корня хранилища. Не имеет побочных эффектов: чистая валидация
// и композиция пути.
type Resolver struct {
	// root — абсолютный путь корня хранилища
	root string
}

// New создаёт Resolver для указанного корня хранилища.
// root должен быть абсолютным путём.
func New(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Root возвращает корень хранилища.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve валидирует сегменты имени (папка, опционально файл внутри неё)
// и возвращает абсолютный путь root/segment1[/segment2].
// Гарантирует, что результат — потомок корня хранилища.
func (r *Resolver) Resolve(segments ...string) (string, error) {
	if len(segments) == 0 || len(segments) > 2 {
		return "", fmt.Errorf("%w: ожидается 1 или 2 сегмента, получено %d", ErrInvalidPath, len(segments))
	}

	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, r.root)

	for _, seg := range segments {
		if err := ValidateName(seg); err != nil {
			return "", err
		}
		parts = append(parts, seg)
	}

	resolved := filepath.Join(parts...)

	// Защита в глубину: после Join результат обязан остаться внутри корня
	// (отсекает абсолютные пути и drive-letter инъекции, прошедшие
	// посимвольную проверку на экзотических платформах).
	// rel == "." означало бы сам корень, а не его потомка
	rel, err := filepath.Rel(r.root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: путь выходит за пределы корня хранилища", ErrInvalidPath)
	}

	return resolved, nil
}

// ValidateName проверяет один сегмент имени: не пустой и не из одних
// пробелов, без токена "..", без разделителей и недопустимых символов,
// без управляющих символов.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: пустое имя", ErrInvalidPath)
	}
	// "." схлопывается в сам корень при Join
	if name == "." {
		return fmt.Errorf("%w: имя %q недопустимо", ErrInvalidPath, name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: имя содержит %q", ErrInvalidPath, "..")
	}
	if strings.ContainsAny(name, invalidChars) {
		return fmt.Errorf("%w: имя %q содержит недопустимые символы", ErrInvalidPath, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: имя содержит управляющие символы", ErrInvalidPath)
		}
	}
	return nil
}
