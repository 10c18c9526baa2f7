// disk_usage.go — получение информации об ёмкости тома хранилища.
// Платформозависимый код для Unix-подобных систем.
package main

import (
	"fmt"
	"syscall"

	"github.com/maurocosentino/personalcloud/internal/api/handlers"
)

// getDiskUsage возвращает информацию о дисковом пространстве в директории.
func getDiskUsage(path string) (handlers.DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return handlers.DiskUsage{}, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)

	return handlers.DiskUsage{
		TotalBytes:     total,
		UsedBytes:      total - available,
		AvailableBytes: available,
	}, nil
}
