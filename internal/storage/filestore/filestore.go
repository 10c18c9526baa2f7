// Пакет filestore — мутации хранилища: создание папок, запись
// загруженных файлов, удаление файлов и папок. Вся работа с ФС идёт
// через afero.Fs, чтобы backend подменялся в тестах (MemMapFs).
// Имена из запросов резолвятся через paths.Resolver до любого
// обращения к файловой системе.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/maurocosentino/personalcloud/internal/storage/paths"
)

// ErrNotFound — файл или папка не существует.
var ErrNotFound = errors.New("файл или папка не найдены")

// ErrConflict — папка с таким именем уже существует.
var ErrConflict = errors.New("папка уже существует")

// Store — операции изменения хранилища поверх afero.Fs.
type Store struct {
	fs       afero.Fs
	resolver *paths.Resolver
}

// New создаёт Store и гарантирует существование корня хранилища.
func New(fsys afero.Fs, root string) (*Store, error) {
	if err := fsys.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корень хранилища %s: %w", root, err)
	}

	return &Store{
		fs:       fsys,
		resolver: paths.New(root),
	}, nil
}

// Fs возвращает файловую систему хранилища.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Resolver возвращает резолвер путей хранилища.
func (s *Store) Resolver() *paths.Resolver {
	return s.resolver
}

// Root возвращает корень хранилища.
func (s *Store) Root() string {
	return s.resolver.Root()
}

// CreateFolder создаёт пустую папку первого уровня.
// Возвращает ErrConflict, если папка уже существует.
func (s *Store) CreateFolder(name string) error {
	dir, err := s.resolver.Resolve(name)
	if err != nil {
		return err
	}

	if exists, err := afero.DirExists(s.fs, dir); err != nil {
		return fmt.Errorf("ошибка проверки папки %s: %w", name, err)
	} else if exists {
		return fmt.Errorf("%w: %s", ErrConflict, name)
	}

	if err := s.fs.Mkdir(dir, 0o750); err != nil {
		return fmt.Errorf("ошибка создания папки %s: %w", name, err)
	}
	return nil
}

// Save записывает поток в folder/filename (или root/filename при
// пустом folder). Папка создаётся автоматически — политика
// creation-on-demand для загрузок, в отличие от CreateFolder.
// Существующий файл с тем же именем перезаписывается.
//
// Паттерн записи: temp файл → io.Copy → fsync → rename.
// При ошибке temp файл удаляется.
func (s *Store) Save(folder, filename string, r io.Reader) (int64, error) {
	var fullPath string
	var err error

	if folder == "" {
		fullPath, err = s.resolver.Resolve(filename)
	} else {
		fullPath, err = s.resolver.Resolve(folder, filename)
	}
	if err != nil {
		return 0, err
	}

	if folder != "" {
		dir, dirErr := s.resolver.Resolve(folder)
		if dirErr != nil {
			return 0, dirErr
		}
		if mkErr := s.fs.MkdirAll(dir, 0o750); mkErr != nil {
			return 0, fmt.Errorf("ошибка создания папки %s: %w", folder, mkErr)
		}
	}

	// Уникальный суффикс защищает от пересечения temp файлов
	// параллельных загрузок с одинаковым именем.
	tmpPath := fullPath + ".tmp-" + uuid.New().String()[:8]

	f, err := s.fs.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Последний писатель побеждает: целевой файл снимается перед rename,
	// атомарность между конкурентными Save не гарантируется.
	_ = s.fs.Remove(fullPath)
	if err := s.fs.Rename(tmpPath, fullPath); err != nil {
		_ = s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка переименования временного файла: %w", err)
	}

	return size, nil
}

// DeleteFile удаляет ровно один файл. folder == "" означает корень.
// Возвращает ErrNotFound, если файл отсутствует.
func (s *Store) DeleteFile(folder, name string) error {
	var fullPath string
	var err error

	if folder == "" {
		fullPath, err = s.resolver.Resolve(name)
	} else {
		fullPath, err = s.resolver.Resolve(folder, name)
	}
	if err != nil {
		return err
	}

	info, err := s.fs.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("ошибка проверки файла %s: %w", name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := s.fs.Remove(fullPath); err != nil {
		return fmt.Errorf("ошибка удаления файла %s: %w", name, err)
	}
	return nil
}

// DeleteFolder рекурсивно удаляет папку со всем содержимым.
// Возвращает ErrNotFound, если папка отсутствует.
func (s *Store) DeleteFolder(name string) error {
	dir, err := s.resolver.Resolve(name)
	if err != nil {
		return err
	}

	if exists, err := afero.DirExists(s.fs, dir); err != nil {
		return fmt.Errorf("ошибка проверки папки %s: %w", name, err)
	} else if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("ошибка удаления папки %s: %w", name, err)
	}
	return nil
}

// FolderExists проверяет существование папки первого уровня.
func (s *Store) FolderExists(name string) (bool, error) {
	dir, err := s.resolver.Resolve(name)
	if err != nil {
		return false, err
	}
	return afero.DirExists(s.fs, dir)
}

// Folders возвращает отсортированный список имён папок первого уровня.
func (s *Store) Folders() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.resolver.Root())
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения корня хранилища: %w", err)
	}

	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Strings(folders)
	return folders, nil
}
