package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/cache"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/config"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/logging"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/repositories"
)

const maxLoggedTitle = 80

// RecordSource yields raw records in document order and io.EOF when exhausted.
type RecordSource interface {
	Next() (models.RawRecord, error)
}

// ScopeInvalidator drops cached results for a scope.
type ScopeInvalidator interface {
	InvalidateScope(ctx context.Context, scope cache.Scope) int
}

// Reconciler upserts extracted records into the store.
type Reconciler interface {
	// Reconcile consumes src into the store and accumulates counts and
	// per-record failures in report. It returns an error only when the run
	// stops early (cancellation or a broken stream); per-record failures never
	// surface here. When any write was committed the "contracts" cache scope
	// is invalidated exactly once before Reconcile returns.
	Reconcile(ctx context.Context, src RecordSource, report *models.SyncReport) error
}

type reconciler struct {
	store        repositories.ContractStore
	cache        ScopeInvalidator
	updatePolicy string
	logger       *zap.Logger
}

// NewReconciler creates a Reconciler. updatePolicy is config.UpdatePolicySkip
// or config.UpdatePolicyUpdate.
func NewReconciler(store repositories.ContractStore, cache ScopeInvalidator, updatePolicy string, logger *zap.Logger) Reconciler {
	if updatePolicy == "" {
		updatePolicy = config.UpdatePolicySkip
	}
	return &reconciler{
		store:        store,
		cache:        cache,
		updatePolicy: updatePolicy,
		logger:       logger.Named("reconciler"),
	}
}

// recordOutcome collects the effect of one record; it is merged into the
// report only after the record's transaction commits.
type recordOutcome struct {
	inserted           bool
	updated            bool
	duplicate          bool
	amendmentsInserted int
	suppliersInserted  int
	conflict           *models.SupplierConflict
}

func (r *reconciler) Reconcile(ctx context.Context, src RecordSource, report *models.SyncReport) error {
	if report.ShapeCounts == nil {
		report.ShapeCounts = make(map[string]int)
	}

	var runErr error
	for {
		// cancellation is honoured between records only
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			runErr = err
			r.logger.Info("Reconciliation cancelled", zap.Int("seen", report.Seen))
			break
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			runErr = apperrors.Wrap(err, apperrors.KindParse, "reconcile.next")
			break
		}
		report.Seen++

		if rec.ParseErr != nil {
			r.fail(report, rec, apperrors.Wrap(rec.ParseErr, apperrors.KindParse, "extract"))
			continue
		}
		if rec.Shape != "" {
			report.ShapeCounts[rec.Shape]++
		}
		if rec.Kind == models.RecordKindContract && rec.NoSupplier {
			report.NoSupplier++
		}

		// a started record always completes its transaction
		out, err := r.reconcileRecord(context.WithoutCancel(ctx), rec)
		if err != nil {
			r.fail(report, rec, err)
			continue
		}
		r.merge(report, rec, out)
	}

	if report.Writes() > 0 && r.cache != nil {
		removed := r.cache.InvalidateScope(context.WithoutCancel(ctx), cache.ScopeContracts)
		report.CacheInvalidated = true
		r.logger.Debug("Invalidated contracts cache scope", zap.Int("removed", removed))
	}

	r.logger.Info("Reconciliation finished",
		zap.Int("seen", report.Seen),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("skipped_duplicate", report.SkippedDuplicate),
		zap.Int("amendments_inserted", report.AmendmentsInserted),
		zap.Int("failed", report.Failed),
		zap.Int("conflicts", len(report.Conflicts)))

	return runErr
}

func (r *reconciler) fail(report *models.SyncReport, rec models.RawRecord, err error) {
	kind := apperrors.KindOf(err)
	if kind == "" {
		kind = apperrors.KindStore
	}
	report.AddFailure(rec.Index, string(kind), err.Error())
	r.logger.Warn("Record rejected",
		zap.Int("index", rec.Index),
		zap.String("external_id", rec.ExternalID),
		zap.String("title", logging.TruncateString(normalizeText(rec.Title), maxLoggedTitle)),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

func (r *reconciler) merge(report *models.SyncReport, rec models.RawRecord, out recordOutcome) {
	switch {
	case out.inserted:
		report.Inserted++
	case out.updated:
		report.Updated++
	case out.duplicate:
		report.SkippedDuplicate++
	}
	report.AmendmentsInserted += out.amendmentsInserted
	report.SuppliersInserted += out.suppliersInserted
	if out.conflict != nil {
		out.conflict.Index = rec.Index
		report.Conflicts = append(report.Conflicts, *out.conflict)
		r.logger.Warn("Supplier tax id conflict flagged for review",
			zap.Int("index", rec.Index),
			zap.String("tax_id", out.conflict.TaxID),
			zap.String("existing_name", out.conflict.ExistingName),
			zap.String("incoming_name", out.conflict.IncomingName))
	}
}

func (r *reconciler) reconcileRecord(ctx context.Context, rec models.RawRecord) (recordOutcome, error) {
	if rec.Kind == models.RecordKindAmendment {
		return r.reconcileStandaloneAmendment(ctx, rec)
	}

	contract, err := buildContract(rec)
	if err != nil {
		return recordOutcome{}, err
	}
	pending, err := buildAmendments(rec.Amendments)
	if err != nil {
		return recordOutcome{}, err
	}

	existing, err := r.findExisting(ctx, contract)
	if err != nil {
		return recordOutcome{}, err
	}
	if existing == nil {
		out, err := r.insertContract(ctx, contract, pending)
		if !errors.Is(err, apperrors.ErrConflict) {
			return out, err
		}
		// the key was taken between lookup and insert; treat it as a duplicate
		if existing, err = r.findExisting(ctx, contract); err != nil {
			return recordOutcome{}, err
		}
		if existing == nil {
			return recordOutcome{}, apperrors.New(apperrors.KindStore, "reconcile", "dedup key collision on insert but no existing contract found")
		}
	}
	return r.applyDuplicate(ctx, existing, contract, pending)
}

func (r *reconciler) findExisting(ctx context.Context, c *models.Contract) (*models.Contract, error) {
	var (
		existing *models.Contract
		err      error
	)
	if c.ExternalID != "" {
		existing, err = r.store.FindContractByExternalID(ctx, c.ExternalID)
	} else {
		existing, err = r.store.FindContractByNaturalKey(ctx, c.NaturalKey)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStore, "find contract")
	}
	return existing, nil
}

func (r *reconciler) insertContract(ctx context.Context, c *models.Contract, pending []*models.Amendment) (recordOutcome, error) {
	var out recordOutcome
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		out = recordOutcome{}
		supplierID, err := r.resolveSupplier(ctx, c, &out)
		if err != nil {
			return err
		}
		c.SupplierID = supplierID
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if err := r.store.CreateContract(ctx, c); err != nil {
			return err
		}
		out.inserted = true
		n, err := r.store.CreateAmendments(ctx, attach(pending, c.ID))
		if err != nil {
			return err
		}
		out.amendmentsInserted = n
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return recordOutcome{}, err
		}
		return recordOutcome{}, apperrors.Wrap(err, apperrors.KindStore, "insert contract")
	}
	return out, nil
}

// applyDuplicate handles a record whose dedup key already exists: the stored
// row is kept (or refreshed under the update policy) and amendments not yet
// stored are added under it.
func (r *reconciler) applyDuplicate(ctx context.Context, existing, incoming *models.Contract, pending []*models.Amendment) (recordOutcome, error) {
	update := r.updatePolicy == config.UpdatePolicyUpdate
	if !update && len(pending) == 0 {
		return recordOutcome{duplicate: true}, nil
	}

	var out recordOutcome
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		out = recordOutcome{duplicate: true}
		if update {
			supplierID, err := r.resolveSupplier(ctx, incoming, &out)
			if err != nil {
				return err
			}
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			incoming.SupplierID = supplierID
			if err := r.store.UpdateContract(ctx, incoming); err != nil {
				return err
			}
			out.duplicate = false
			out.updated = true
		}
		if len(pending) == 0 {
			return nil
		}
		n, err := r.store.CreateAmendments(ctx, attach(pending, existing.ID))
		if err != nil {
			return err
		}
		out.amendmentsInserted = n
		return nil
	})
	if err != nil {
		return recordOutcome{}, apperrors.Wrap(err, apperrors.KindStore, "update contract")
	}
	return out, nil
}

func (r *reconciler) reconcileStandaloneAmendment(ctx context.Context, rec models.RawRecord) (recordOutcome, error) {
	parentID := normalizeText(rec.ParentExternalID)
	if parentID == "" {
		return recordOutcome{}, apperrors.New(apperrors.KindValidation, "amendment", "amendment has no parent contract id")
	}
	pending, err := buildAmendments([]models.RawAmendment{{Amount: rec.Amount, Date: rec.Date}})
	if err != nil {
		return recordOutcome{}, err
	}

	parent, err := r.store.FindContractByExternalID(ctx, parentID)
	if err != nil {
		return recordOutcome{}, apperrors.Wrap(err, apperrors.KindStore, "find parent contract")
	}
	if parent == nil {
		return recordOutcome{}, apperrors.New(apperrors.KindStore, "amendment",
			fmt.Sprintf("orphan amendment: contract %q does not exist", parentID))
	}

	var out recordOutcome
	err = r.store.RunInTx(ctx, func(ctx context.Context) error {
		n, err := r.store.CreateAmendments(ctx, attach(pending, parent.ID))
		out.amendmentsInserted = n
		return err
	})
	if err != nil {
		return recordOutcome{}, apperrors.Wrap(err, apperrors.KindStore, "insert amendment")
	}
	return out, nil
}

// resolveSupplier finds or creates the contract's supplier. A known tax id
// arriving with a different name keeps the stored name and flags the
// supplier for review.
func (r *reconciler) resolveSupplier(ctx context.Context, c *models.Contract, out *recordOutcome) (*uuid.UUID, error) {
	name, taxID := c.SupplierName, c.SupplierTaxID
	if name == "" && taxID == "" {
		return nil, nil
	}

	if taxID != "" {
		existing, err := r.store.FindSupplierByTaxID(ctx, taxID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if name != "" && !sameName(existing.Name, name) {
				out.conflict = &models.SupplierConflict{
					Kind:         string(apperrors.KindConflict),
					TaxID:        taxID,
					ExistingName: existing.Name,
					IncomingName: name,
				}
				if !existing.NeedsReview || !sameName(existing.ConflictName, name) {
					if err := r.store.FlagSupplierConflict(ctx, existing.ID, name); err != nil {
						return nil, err
					}
				}
			}
			return &existing.ID, nil
		}
		if name == "" {
			name = taxID
		}
	} else {
		existing, err := r.store.FindSupplierByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &existing.ID, nil
		}
	}

	s := &models.Supplier{ID: uuid.New(), Name: name, TaxID: taxID}
	if err := r.store.CreateSupplier(ctx, s); err != nil {
		return nil, err
	}
	out.suppliersInserted++
	return &s.ID, nil
}

// buildContract normalizes a raw record. Title, amount and date are required.
func buildContract(rec models.RawRecord) (*models.Contract, error) {
	title := normalizeText(rec.Title)
	if title == "" {
		return nil, apperrors.New(apperrors.KindValidation, "contract", "title is required")
	}
	amount, err := parseAmount(rec.Amount)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "contract", err.Error())
	}
	date, err := parseDate(rec.Date)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "contract", err.Error())
	}

	c := &models.Contract{
		ExternalID:      normalizeText(rec.ExternalID),
		Title:           title,
		Amount:          amount,
		Category:        normalizeText(rec.Category),
		Date:            date,
		SupplierName:    normalizeText(rec.SupplierName),
		SupplierTaxID:   normalizeText(rec.SupplierTaxID),
		Authority:       normalizeText(rec.Authority),
		ProcurementType: normalizeText(rec.ProcurementType),
		Latitude:        parseCoordinate(rec.Latitude, 90),
		Longitude:       parseCoordinate(rec.Longitude, 180),
	}
	c.NaturalKey = naturalKey(c.Title, c.Amount, c.Date, c.SupplierName, c.Authority)
	return c, nil
}

func buildAmendments(raw []models.RawAmendment) ([]*models.Amendment, error) {
	out := make([]*models.Amendment, 0, len(raw))
	for i, ra := range raw {
		amount, err := parseAmount(ra.Amount)
		if err != nil {
			return nil, apperrors.New(apperrors.KindValidation, "amendment", fmt.Sprintf("amendment %d: %v", i+1, err))
		}
		date, err := parseDate(ra.Date)
		if err != nil {
			return nil, apperrors.New(apperrors.KindValidation, "amendment", fmt.Sprintf("amendment %d: %v", i+1, err))
		}
		out = append(out, &models.Amendment{Amount: amount, Date: date})
	}
	return out, nil
}

func attach(amendments []*models.Amendment, contractID uuid.UUID) []*models.Amendment {
	for _, a := range amendments {
		a.ContractID = contractID
	}
	return amendments
}
