package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/cache"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/repositories"
)

// fakeStore is an in-memory ContractRepository. RunInTx snapshots the maps
// and restores them when fn fails, so rollback is observable.
type fakeStore struct {
	mu sync.Mutex

	contracts  map[uuid.UUID]*models.Contract
	suppliers  map[uuid.UUID]*models.Supplier
	amendments map[string]*models.Amendment

	// failOn makes the named operation return the error.
	failOn map[string]error

	listCalls  int
	getCalls   int
	statsCalls int
}

var _ repositories.ContractRepository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		contracts:  make(map[uuid.UUID]*models.Contract),
		suppliers:  make(map[uuid.UUID]*models.Supplier),
		amendments: make(map[string]*models.Amendment),
		failOn:     make(map[string]error),
	}
}

func (f *fakeStore) fail(op string) error {
	return f.failOn[op]
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	contracts := make(map[uuid.UUID]*models.Contract, len(f.contracts))
	for k, v := range f.contracts {
		c := *v
		contracts[k] = &c
	}
	suppliers := make(map[uuid.UUID]*models.Supplier, len(f.suppliers))
	for k, v := range f.suppliers {
		s := *v
		suppliers[k] = &s
	}
	amendments := make(map[string]*models.Amendment, len(f.amendments))
	for k, v := range f.amendments {
		amendments[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.contracts, f.suppliers, f.amendments = contracts, suppliers, amendments
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) FindContractByExternalID(_ context.Context, externalID string) (*models.Contract, error) {
	if err := f.fail("FindContract"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contracts {
		if c.ExternalID != "" && c.ExternalID == externalID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindContractByNaturalKey(_ context.Context, naturalKey string) (*models.Contract, error) {
	if err := f.fail("FindContract"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contracts {
		if c.ExternalID == "" && c.NaturalKey == naturalKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateContract(_ context.Context, c *models.Contract) error {
	if err := f.fail("CreateContract"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// same rules as the unique indexes: external_id when present, natural_key
	// only among rows without one
	for _, existing := range f.contracts {
		switch {
		case c.ExternalID != "" && existing.ExternalID == c.ExternalID:
			return apperrors.ErrConflict
		case c.ExternalID == "" && existing.ExternalID == "" && existing.NaturalKey == c.NaturalKey:
			return apperrors.ErrConflict
		}
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	f.contracts[c.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateContract(_ context.Context, c *models.Contract) error {
	if err := f.fail("UpdateContract"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.contracts[c.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	updated := *c
	updated.ExternalID = existing.ExternalID
	updated.NaturalKey = existing.NaturalKey
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	f.contracts[c.ID] = &updated
	return nil
}

func (f *fakeStore) CreateAmendments(_ context.Context, amendments []*models.Amendment) (int, error) {
	if err := f.fail("CreateAmendments"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range amendments {
		if _, ok := f.contracts[a.ContractID]; !ok {
			return n, apperrors.New(apperrors.KindStore, "create amendments", "contract does not exist")
		}
		if _, ok := f.amendments[a.DedupKey()]; ok {
			continue
		}
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		cp := *a
		f.amendments[a.DedupKey()] = &cp
		n++
	}
	return n, nil
}

func (f *fakeStore) FindSupplierByTaxID(_ context.Context, taxID string) (*models.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.suppliers {
		if s.TaxID == taxID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindSupplierByName(_ context.Context, name string) (*models.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.suppliers {
		if s.TaxID == "" && s.Name == name {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateSupplier(_ context.Context, s *models.Supplier) error {
	if err := f.fail("CreateSupplier"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.suppliers[s.ID] = &cp
	return nil
}

func (f *fakeStore) FlagSupplierConflict(_ context.Context, supplierID uuid.UUID, conflictName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[supplierID]
	if !ok {
		return apperrors.ErrNotFound
	}
	s.NeedsReview = true
	s.ConflictName = conflictName
	return nil
}

func (f *fakeStore) CountContracts(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contracts), nil
}

func (f *fakeStore) CountSuppliers(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.suppliers), nil
}

func (f *fakeStore) CountAmendments(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.amendments), nil
}

func (f *fakeStore) CountInquiries(context.Context) (int, error) {
	return 0, nil
}

func (f *fakeStore) ListContracts(_ context.Context, filter models.ContractFilter) (*models.ContractPage, error) {
	if err := f.fail("ListContracts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	var matched []*models.Contract
	for _, c := range f.contracts {
		if filter.Query != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(filter.Query)) {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(c.Category, filter.Category) {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })

	page := &models.ContractPage{Contracts: []*models.Contract{}, Total: len(matched)}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		page.Contracts = matched[filter.Offset:end]
	}
	return page, nil
}

func (f *fakeStore) GetContract(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	c, ok := f.contracts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) Stats(context.Context) (*models.ContractStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	stats := &models.ContractStats{
		Contracts:   len(f.contracts),
		Suppliers:   len(f.suppliers),
		Amendments:  len(f.amendments),
		TotalAmount: decimal.Zero,
	}
	for _, c := range f.contracts {
		stats.TotalAmount = stats.TotalAmount.Add(c.Amount)
	}
	return stats, nil
}

func (f *fakeStore) contractByExternalID(id string) *models.Contract {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contracts {
		if c.ExternalID == id {
			return c
		}
	}
	return nil
}

// sliceSource replays records, assigning 1-based indexes when unset.
type sliceSource struct {
	records []models.RawRecord
	pos     int
	// onNext runs before each record is returned.
	onNext func(pos int)
}

func newSliceSource(records ...models.RawRecord) *sliceSource {
	for i := range records {
		if records[i].Index == 0 {
			records[i].Index = i + 1
		}
		if records[i].Kind == "" {
			records[i].Kind = models.RecordKindContract
		}
	}
	return &sliceSource{records: records}
}

func (s *sliceSource) Next() (models.RawRecord, error) {
	if s.pos >= len(s.records) {
		return models.RawRecord{}, io.EOF
	}
	if s.onNext != nil {
		s.onNext(s.pos)
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// countingInvalidator records scope invalidations.
type countingInvalidator struct {
	mu     sync.Mutex
	scopes []cache.Scope
}

func (c *countingInvalidator) InvalidateScope(_ context.Context, scope cache.Scope) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes = append(c.scopes, scope)
	return 0
}

func (c *countingInvalidator) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scopes)
}

var errStoreDown = errors.New("connection reset by peer")

// contractRecord builds a valid raw contract record.
func contractRecord(externalID, title, amount string) models.RawRecord {
	return models.RawRecord{
		Kind:          models.RecordKindContract,
		ExternalID:    externalID,
		Title:         title,
		Amount:        amount,
		Date:          "2024-01-15",
		Category:      "stavby",
		SupplierName:  "STRABAG a.s.",
		SupplierTaxID: "60838744",
		Authority:     "Město Kolín",
		Shape:         "tagged-subjects",
	}
}
