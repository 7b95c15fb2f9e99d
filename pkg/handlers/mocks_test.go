package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/services"
)

// mockSyncService records how it was triggered.
type mockSyncService struct {
	report *models.SyncReport
	err    error
	status services.SyncStatus

	runPeriods   []models.Period
	runSyncCalls int
}

func (m *mockSyncService) Run(_ context.Context, period models.Period) (*models.SyncReport, error) {
	m.runPeriods = append(m.runPeriods, period)
	return m.report, m.err
}

func (m *mockSyncService) RunSync(context.Context) (*models.SyncReport, error) {
	m.runSyncCalls++
	return m.report, m.err
}

func (m *mockSyncService) Status() services.SyncStatus {
	return m.status
}

// mockQueryService is a configurable ContractQueryService.
type mockQueryService struct {
	mu sync.Mutex

	page     *models.ContractPage
	contract *models.Contract
	stats    *models.ContractStats
	err      error

	lastFilter  models.ContractFilter
	lastID      uuid.UUID
	warmFilters []models.ContractFilter
}

var _ services.ContractQueryService = (*mockQueryService)(nil)

func (m *mockQueryService) List(_ context.Context, filter models.ContractFilter) (*models.ContractPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	return m.page, m.err
}

func (m *mockQueryService) Get(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID = id
	return m.contract, m.err
}

func (m *mockQueryService) Stats(context.Context) (*models.ContractStats, error) {
	return m.stats, m.err
}

func (m *mockQueryService) WarmCommonQueries(_ context.Context, filters []models.ContractFilter) services.WarmResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmFilters = filters
	return services.WarmResult{Queries: len(filters) + 1, Warmed: len(filters) + 1}
}

// mockDB reports a fixed health result.
type mockDB struct {
	err error
}

func (m mockDB) Healthy(context.Context) error {
	return m.err
}
