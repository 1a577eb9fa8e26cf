package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"

	"github.com/devxaves/lifeline-protocol/internal/models"
)

const releaseContentType = "application/json"

// ReleaseArchive хранит записи о передаче активов номинанту.
type ReleaseArchive interface {
	PutRelease(ctx context.Context, record *models.ReleaseRecord) error
	GetRelease(ctx context.Context, owner string) (io.ReadCloser, error)
}

// objectReleaseArchive сериализует записи в JSON поверх FileStorage.
type objectReleaseArchive struct {
	files FileStorage
}

// NewReleaseArchive создает архив поверх объектного хранилища.
func NewReleaseArchive(files FileStorage) ReleaseArchive {
	return &objectReleaseArchive{files: files}
}

// ReleaseObjectKey возвращает ключ объекта записи для владельца.
// Кошелек экранируется, чтобы не порождать вложенные "каталоги".
func ReleaseObjectKey(owner string) string {
	return fmt.Sprintf("releases/%s.json", url.PathEscape(owner))
}

// PutRelease сохраняет запись о передаче. Повторная запись перезаписывает объект.
func (a *objectReleaseArchive) PutRelease(ctx context.Context, record *models.ReleaseRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи о передаче: %w", err)
	}

	key := ReleaseObjectKey(record.Owner)
	if err = a.files.UploadFile(ctx, key, bytes.NewReader(body), int64(len(body)), releaseContentType); err != nil {
		return fmt.Errorf("ошибка сохранения записи о передаче '%s': %w", key, err)
	}

	log.Printf("[ReleaseArchive] Запись о передаче для '%s' сохранена (%d байт)", record.Owner, len(body))
	return nil
}

// GetRelease возвращает JSON записи о передаче. Если записи нет, возвращает ErrObjectNotFound.
func (a *objectReleaseArchive) GetRelease(ctx context.Context, owner string) (io.ReadCloser, error) {
	return a.files.DownloadFile(ctx, ReleaseObjectKey(owner))
}
