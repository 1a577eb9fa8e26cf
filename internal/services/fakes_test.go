package services_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/devxaves/lifeline-protocol/internal/models"
	"github.com/devxaves/lifeline-protocol/internal/repository"
	"github.com/devxaves/lifeline-protocol/internal/storage"
)

// --- In-memory хранилище с условной записью по версии ---

type memVaultRepo struct {
	mu     sync.Mutex
	vaults map[string]*models.Vault
	events []models.VaultEvent

	// Параметры последнего запроса журнала
	lastLimit, lastOffset int
}

func newMemVaultRepo() *memVaultRepo {
	return &memVaultRepo{vaults: make(map[string]*models.Vault)}
}

func (r *memVaultRepo) CreateVault(_ context.Context, vault *models.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[vault.Owner]; ok {
		return repository.ErrVaultExists
	}
	r.vaults[vault.Owner] = vault.Clone()
	r.appendEvent(models.VaultEvent{
		VaultID: vault.ID, Owner: vault.Owner, Kind: models.EventCreated, Actor: vault.Owner, CreatedAt: vault.CreatedAt,
	})
	return nil
}

func (r *memVaultRepo) GetVaultByOwner(_ context.Context, owner string) (*models.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[owner]
	if !ok {
		return nil, repository.ErrVaultNotFound
	}
	return v.Clone(), nil
}

func (r *memVaultRepo) FindVaultByTrustee(_ context.Context, wallet string) (*models.Vault, error) {
	return r.findFirst(func(v *models.Vault) bool { return v.IsTrustee(wallet) })
}

func (r *memVaultRepo) FindVaultByNominee(_ context.Context, wallet string) (*models.Vault, error) {
	return r.findFirst(func(v *models.Vault) bool { return v.Nominee == wallet })
}

func (r *memVaultRepo) findFirst(match func(v *models.Vault) bool) (*models.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*models.Vault
	for _, v := range r.vaults {
		if match(v) {
			found = append(found, v)
		}
	}
	if len(found) == 0 {
		return nil, repository.ErrVaultNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found[0].Clone(), nil
}

func (r *memVaultRepo) UpdateVault(
	_ context.Context,
	vault *models.Vault,
	expectedVersion int64,
	event *models.VaultEvent,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.vaults[vault.Owner]
	if !ok {
		return repository.ErrVaultNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	vault.Version = expectedVersion + 1
	r.vaults[vault.Owner] = vault.Clone()
	if event != nil {
		r.appendEvent(*event)
	}
	return nil
}

func (r *memVaultRepo) appendEvent(e models.VaultEvent) {
	e.ID = int64(len(r.events) + 1)
	r.events = append(r.events, e)
}

func (r *memVaultRepo) ListEventsByOwner(_ context.Context, owner string, limit, offset int) ([]models.VaultEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit, r.lastOffset = limit, offset
	var out []models.VaultEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Owner == owner {
			out = append(out, r.events[i])
		}
	}
	if offset >= len(out) {
		return []models.VaultEvent{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// stored возвращает копию записи в обход сервиса.
func (r *memVaultRepo) stored(owner string) *models.Vault {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vaults[owner].Clone()
}

// --- Архив записей о передаче в памяти ---

type memArchive struct {
	mu      sync.Mutex
	records map[string][]byte
	putErr  error
}

func newMemArchive() *memArchive {
	return &memArchive{records: make(map[string][]byte)}
}

func (a *memArchive) PutRelease(_ context.Context, record *models.ReleaseRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.putErr != nil {
		return a.putErr
	}
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	a.records[record.Owner] = b
	return nil
}

func (a *memArchive) GetRelease(_ context.Context, owner string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.records[owner]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// --- Управляемые часы ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Моки ---

// MockVaultRepository is a mock for VaultRepository.
type MockVaultRepository struct {
	mock.Mock
}

func (m *MockVaultRepository) CreateVault(ctx context.Context, vault *models.Vault) error {
	args := m.Called(ctx, vault)
	return args.Error(0)
}

func (m *MockVaultRepository) GetVaultByOwner(ctx context.Context, owner string) (*models.Vault, error) {
	return m.vaultResult(m.Called(ctx, owner))
}

func (m *MockVaultRepository) FindVaultByTrustee(ctx context.Context, wallet string) (*models.Vault, error) {
	return m.vaultResult(m.Called(ctx, wallet))
}

func (m *MockVaultRepository) FindVaultByNominee(ctx context.Context, wallet string) (*models.Vault, error) {
	return m.vaultResult(m.Called(ctx, wallet))
}

func (m *MockVaultRepository) UpdateVault(
	ctx context.Context,
	vault *models.Vault,
	expectedVersion int64,
	event *models.VaultEvent,
) error {
	args := m.Called(ctx, vault, expectedVersion, event)
	return args.Error(0)
}

func (m *MockVaultRepository) vaultResult(args mock.Arguments) (*models.Vault, error) {
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(*models.Vault).Clone(), args.Error(1)
}
