package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devxaves/lifeline-protocol/internal/models"
	"github.com/devxaves/lifeline-protocol/internal/repository"
	"github.com/devxaves/lifeline-protocol/internal/storage"
	"github.com/devxaves/lifeline-protocol/internal/tally"
)

// Сколько раз повторяется цикл чтение-вычисление-запись при конфликте версий.
const maxCASAttempts = 5

// Пагинация журнала событий.
const (
	DefaultEventsLimit = 20
	MaxEventsLimit     = 100
)

// VaultService определяет интерфейс жизненного цикла хранилища.
type VaultService interface {
	CreateVault(ctx context.Context, in CreateVaultInput) (uuid.UUID, error)
	GetVault(ctx context.Context, identity string) (*models.VaultView, error)
	Heartbeat(ctx context.Context, owner string) error
	CastVote(ctx context.Context, trustee, owner string, choice models.VoteChoice) error
	StartCooldown(ctx context.Context, actor, owner string) error
	ConfirmDeath(ctx context.Context, actor, owner string) error
	ListEvents(ctx context.Context, actor, owner string, limit, offset int) ([]models.VaultEvent, error)
	DownloadRelease(ctx context.Context, actor, owner string) (io.ReadCloser, error)
}

// CreateVaultInput - параметры создания хранилища.
type CreateVaultInput struct {
	Owner                 string
	Nominee               string
	Trustees              []string
	HeartbeatIntervalDays int
	CooldownPeriodDays    int
	AssetType             string
	Amount                decimal.Decimal
}

// Option настраивает vaultService.
type Option func(*vaultService)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *vaultService) { s.now = now }
}

var _ VaultService = (*vaultService)(nil) // Проверка соответствия интерфейсу

type vaultService struct {
	vaultRepo repository.VaultRepository
	eventRepo repository.VaultEventRepository
	access    AccessService
	archive   storage.ReleaseArchive
	now       func() time.Time
}

// NewVaultService создает новый экземпляр сервиса хранилищ.
func NewVaultService(
	vaultRepo repository.VaultRepository,
	eventRepo repository.VaultEventRepository,
	archive storage.ReleaseArchive,
	opts ...Option,
) VaultService {
	s := &vaultService{
		vaultRepo: vaultRepo,
		eventRepo: eventRepo,
		access:    NewAccessService(vaultRepo),
		archive:   archive,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateVault проверяет параметры и создает хранилище в статусе active.
func (s *vaultService) CreateVault(ctx context.Context, in CreateVaultInput) (uuid.UUID, error) {
	in, err := normalizeCreateInput(in)
	if err != nil {
		log.Printf("[VaultService] Неверные параметры создания хранилища для '%s': %v", in.Owner, err)
		return uuid.Nil, err
	}

	now := s.now()
	vault := &models.Vault{
		ID:                    uuid.New(),
		Owner:                 in.Owner,
		Nominee:               in.Nominee,
		Trustees:              in.Trustees,
		Status:                models.StatusActive,
		HeartbeatIntervalDays: in.HeartbeatIntervalDays,
		CooldownPeriodDays:    in.CooldownPeriodDays,
		AssetType:             in.AssetType,
		Amount:                in.Amount,
		LastHeartbeatAt:       now,
		Votes:                 models.Votes{},
		CreatedAt:             now,
		UpdatedAt:             now,
		Version:               1,
	}

	if err = s.vaultRepo.CreateVault(ctx, vault); err != nil {
		log.Printf("[VaultService] Ошибка создания хранилища для '%s': %v", in.Owner, err)
		return uuid.Nil, fromRepo(err, in.Owner)
	}

	log.Printf("[VaultService] Хранилище %s создано для '%s' (доверенных лиц: %d)",
		vault.ID, vault.Owner, len(vault.Trustees))
	return vault.ID, nil
}

// normalizeCreateInput убирает пробелы, отбрасывает пустые строки доверенных лиц и проверяет инварианты.
func normalizeCreateInput(in CreateVaultInput) (CreateVaultInput, error) {
	in.Owner = strings.TrimSpace(in.Owner)
	in.Nominee = strings.TrimSpace(in.Nominee)
	in.AssetType = strings.TrimSpace(in.AssetType)

	trustees := make([]string, 0, len(in.Trustees))
	for _, t := range in.Trustees {
		if t = strings.TrimSpace(t); t != "" {
			trustees = append(trustees, t)
		}
	}
	in.Trustees = trustees

	switch {
	case in.Owner == "":
		return in, newError(KindValidation, "не указан кошелек владельца")
	case in.Nominee == "":
		return in, newError(KindValidation, "не указан кошелек номинанта")
	case in.Nominee == in.Owner:
		return in, newError(KindValidation, "номинант не может совпадать с владельцем")
	case len(in.Trustees) == 0:
		return in, newError(KindValidation, "нужно указать хотя бы одно доверенное лицо")
	case len(in.Trustees) > models.MaxTrustees:
		return in, newError(KindValidation, "доверенных лиц не может быть больше %d", models.MaxTrustees)
	case in.HeartbeatIntervalDays <= 0:
		return in, newError(KindValidation, "интервал heartbeat должен быть положительным")
	case in.CooldownPeriodDays <= 0:
		return in, newError(KindValidation, "период ожидания должен быть положительным")
	case in.Amount.IsNegative():
		return in, newError(KindValidation, "количество актива не может быть отрицательным")
	}

	seen := make(map[string]struct{}, len(in.Trustees))
	for _, t := range in.Trustees {
		if t == in.Owner || t == in.Nominee {
			return in, newError(KindValidation, "доверенное лицо '%s' совпадает с владельцем или номинантом", t)
		}
		if _, dup := seen[t]; dup {
			return in, newError(KindValidation, "доверенное лицо '%s' указано дважды", t)
		}
		seen[t] = struct{}{}
	}
	return in, nil
}

// GetVault возвращает хранилище с ролью запрашивающего и вычисленным на текущий момент статусом.
func (s *vaultService) GetVault(ctx context.Context, identity string) (*models.VaultView, error) {
	vault, role, err := s.access.ResolveRole(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res, _ := tally.Evaluate(vault)
	effective := vault.EffectiveStatus(now)
	return &models.VaultView{
		Vault:           vault,
		UserRole:        role,
		Capabilities:    Capabilities(role),
		EffectiveStatus: effective,
		HeartbeatDueAt:  vault.HeartbeatDueAt(),
		Overdue:         effective == models.StatusPendingVote,
		CooldownEndsAt:  vault.CooldownEndsAt(),
		Tally:           res.View(len(vault.Trustees)),
	}, nil
}

// Heartbeat подтверждает, что владелец жив: сбрасывает статус в active и начинает новый цикл голосования.
func (s *vaultService) Heartbeat(ctx context.Context, owner string) error {
	owner = strings.TrimSpace(owner)
	_, err := s.mutate(ctx, owner, func(v *models.Vault, now time.Time) (*models.VaultEvent, error) {
		if v.Status == models.StatusTransferred {
			return nil, newError(KindInvalidState, "активы хранилища '%s' уже переданы", owner)
		}
		prev := v.Status
		v.Status = models.StatusActive
		v.LastHeartbeatAt = now
		v.CooldownStartedAt = nil
		v.Votes = models.Votes{}
		return &models.VaultEvent{
			Kind:   models.EventHeartbeat,
			Actor:  owner,
			Detail: fmt.Sprintf("previous_status=%s", prev),
		}, nil
	})
	if err != nil {
		return err
	}

	log.Printf("[VaultService] Heartbeat от владельца '%s' принят", owner)
	return nil
}

// CastVote добавляет голос доверенного лица и в той же записи проверяет кворум.
func (s *vaultService) CastVote(ctx context.Context, trustee, owner string, choice models.VoteChoice) error {
	trustee = strings.TrimSpace(trustee)
	owner = strings.TrimSpace(owner)
	if !choice.Valid() {
		return newError(KindValidation, "недопустимый вариант голоса")
	}

	var quorum bool
	_, err := s.mutate(ctx, owner, func(v *models.Vault, now time.Time) (*models.VaultEvent, error) {
		if !v.IsTrustee(trustee) {
			return nil, newError(KindForbidden, "кошелек '%s' не является доверенным лицом хранилища '%s'", trustee, owner)
		}
		if v.Status == models.StatusTransferred {
			return nil, newError(KindInvalidState, "активы хранилища '%s' уже переданы", owner)
		}

		// Прежний голос того же доверенного лица замещается, история остается в журнале событий
		v.Votes = v.Votes.Replace(models.Vote{Trustee: trustee, Choice: choice, CastAt: now})
		res, reached := tally.Evaluate(v)
		quorum = reached
		detail := fmt.Sprintf("vote=%s dead=%d/%d", choice, res.Dead, len(v.Trustees))
		if reached && v.Status == models.StatusActive {
			v.Status = models.StatusCooldown
			v.CooldownStartedAt = &now
			detail += " quorum=reached"
		}
		return &models.VaultEvent{Kind: models.EventVoteCast, Actor: trustee, Detail: detail}, nil
	})
	if err != nil {
		return err
	}

	log.Printf("[VaultService] Голос '%s' от '%s' для '%s' принят (кворум: %t)", choice, trustee, owner, quorum)
	return nil
}

// StartCooldown вручную переводит хранилище в период ожидания.
// Повторный вызов в статусе cooldown ничего не меняет.
func (s *vaultService) StartCooldown(ctx context.Context, actor, owner string) error {
	owner = strings.TrimSpace(owner)
	var started bool
	_, err := s.mutate(ctx, owner, func(v *models.Vault, now time.Time) (*models.VaultEvent, error) {
		switch v.Status {
		case models.StatusTransferred:
			return nil, newError(KindInvalidState, "активы хранилища '%s' уже переданы", owner)
		case models.StatusCooldown:
			return nil, nil
		}
		v.Status = models.StatusCooldown
		v.CooldownStartedAt = &now
		started = true
		return &models.VaultEvent{Kind: models.EventCooldownStarted, Actor: actor, Detail: "manual"}, nil
	})
	if err != nil {
		return err
	}
	if !started {
		log.Printf("[VaultService] Хранилище '%s' уже в периоде ожидания (инициатор: '%s')", owner, actor)
		return nil
	}

	log.Printf("[VaultService] Период ожидания для '%s' запущен (инициатор: '%s')", owner, actor)
	return nil
}

// ConfirmDeath завершает передачу активов номинанту.
// Допустимо только в статусе cooldown и только после истечения периода ожидания.
func (s *vaultService) ConfirmDeath(ctx context.Context, actor, owner string) error {
	owner = strings.TrimSpace(owner)
	var transferred bool
	vault, err := s.mutate(ctx, owner, func(v *models.Vault, now time.Time) (*models.VaultEvent, error) {
		if v.Status == models.StatusTransferred {
			return nil, nil
		}
		if v.Status != models.StatusCooldown || v.CooldownStartedAt == nil {
			return nil, newError(KindInvalidState, "хранилище '%s' не находится в периоде ожидания", owner)
		}
		endsAt := v.CooldownEndsAt()
		if now.Before(*endsAt) {
			return nil, newError(KindInvalidState, "период ожидания хранилища '%s' истекает %s",
				owner, endsAt.Format(time.RFC3339))
		}
		v.Status = models.StatusTransferred
		v.TransferredAt = &now
		transferred = true
		return &models.VaultEvent{Kind: models.EventTransferred, Actor: actor}, nil
	})
	if err != nil {
		return err
	}
	if !transferred {
		log.Printf("[VaultService] Активы '%s' уже были переданы ранее", owner)
		return nil
	}

	log.Printf("[VaultService] Активы '%s' переданы номинанту '%s' (инициатор: '%s')", owner, vault.Nominee, actor)
	if err = s.archiveRelease(ctx, vault); err != nil {
		// Передача уже зафиксирована в БД; запись восстановится при первом скачивании
		log.Printf("[VaultService] Не удалось архивировать запись о передаче '%s': %v", owner, err)
	}
	return nil
}

// ListEvents возвращает журнал событий хранилища его участникам: владельцу,
// доверенным лицам и номинанту. Недопустимые limit и offset заменяются значениями по умолчанию.
func (s *vaultService) ListEvents(
	ctx context.Context,
	actor, owner string,
	limit, offset int,
) ([]models.VaultEvent, error) {
	actor = strings.TrimSpace(actor)
	owner = strings.TrimSpace(owner)
	if limit <= 0 || limit > MaxEventsLimit {
		limit = DefaultEventsLimit
	}
	if offset < 0 {
		offset = 0
	}

	vault, err := s.vaultRepo.GetVaultByOwner(ctx, owner)
	if err != nil {
		return nil, fromRepo(err, owner)
	}
	if actor == "" || (actor != vault.Owner && actor != vault.Nominee && !vault.IsTrustee(actor)) {
		log.Printf("[VaultService] Кошельку '%s' отказано в журнале событий '%s'", actor, owner)
		return nil, newError(KindForbidden, "кошелек '%s' не участвует в хранилище '%s'", actor, owner)
	}

	events, err := s.eventRepo.ListEventsByOwner(ctx, owner, limit, offset)
	if err != nil {
		log.Printf("[VaultService] Ошибка получения событий для '%s': %v", owner, err)
		return nil, fromRepo(err, owner)
	}
	return events, nil
}

// DownloadRelease возвращает запись о передаче активов владельцу или номинанту.
// Если записи нет в архиве (архивация не удалась), она восстанавливается из БД.
func (s *vaultService) DownloadRelease(ctx context.Context, actor, owner string) (io.ReadCloser, error) {
	actor = strings.TrimSpace(actor)
	owner = strings.TrimSpace(owner)

	vault, err := s.vaultRepo.GetVaultByOwner(ctx, owner)
	if err != nil {
		return nil, fromRepo(err, owner)
	}
	if actor != vault.Owner && actor != vault.Nominee {
		return nil, newError(KindForbidden, "кошелек '%s' не может получить запись о передаче '%s'", actor, owner)
	}
	if vault.Status != models.StatusTransferred {
		return nil, newError(KindInvalidState, "активы хранилища '%s' еще не переданы", owner)
	}

	rc, err := s.archive.GetRelease(ctx, owner)
	if errors.Is(err, storage.ErrObjectNotFound) {
		log.Printf("[VaultService] Запись о передаче '%s' отсутствует в архиве, восстанавливаем", owner)
		if err = s.archiveRelease(ctx, vault); err != nil {
			return nil, &Error{Kind: KindUnavailable, Message: "архив записей о передаче недоступен", Err: err}
		}
		rc, err = s.archive.GetRelease(ctx, owner)
	}
	if err != nil {
		log.Printf("[VaultService] Ошибка получения записи о передаче '%s': %v", owner, err)
		return nil, &Error{Kind: KindUnavailable, Message: "архив записей о передаче недоступен", Err: err}
	}
	return rc, nil
}

func (s *vaultService) archiveRelease(ctx context.Context, v *models.Vault) error {
	if v.TransferredAt == nil {
		return errors.New("у хранилища нет времени передачи")
	}
	return s.archive.PutRelease(ctx, &models.ReleaseRecord{
		VaultID:           v.ID,
		Owner:             v.Owner,
		Nominee:           v.Nominee,
		Asset:             v.Asset(),
		CooldownStartedAt: v.CooldownStartedAt,
		TransferredAt:     *v.TransferredAt,
	})
}

// mutateFunc изменяет копию хранилища. Возврат (nil, nil) означает "изменений нет".
type mutateFunc func(v *models.Vault, now time.Time) (*models.VaultEvent, error)

// mutate выполняет чтение, вычисление следующего состояния и условную запись по версии.
// При конфликте версий цикл повторяется целиком на свежих данных.
func (s *vaultService) mutate(ctx context.Context, owner string, apply mutateFunc) (*models.Vault, error) {
	if owner == "" {
		return nil, newError(KindValidation, "не указан кошелек владельца")
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: KindUnavailable, Message: "запрос отменен", Err: err}
		}

		current, err := s.vaultRepo.GetVaultByOwner(ctx, owner)
		if err != nil {
			return nil, fromRepo(err, owner)
		}

		next := current.Clone()
		now := s.now()
		event, err := apply(next, now)
		if err != nil {
			log.Printf("[VaultService] Операция над '%s' отклонена: %v", owner, err)
			return nil, err
		}
		if event == nil {
			return current, nil
		}

		next.UpdatedAt = now
		event.VaultID = next.ID
		event.Owner = next.Owner
		event.CreatedAt = now

		err = s.vaultRepo.UpdateVault(ctx, next, current.Version, event)
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Printf("[VaultService] Конфликт версий для '%s', попытка %d из %d", owner, attempt, maxCASAttempts)
			continue
		}
		if err != nil {
			return nil, fromRepo(err, owner)
		}
		return next, nil
	}

	return nil, &Error{
		Kind:    KindUnavailable,
		Message: fmt.Sprintf("хранилище '%s' слишком часто изменяется, повторите запрос", owner),
		Err:     repository.ErrVersionConflict,
	}
}
