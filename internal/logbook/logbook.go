// Package logbook orchestrates the evidence core: it loads and writes
// per-profile collections and routes every record mutation through the
// evidence stamp, the retrospective assessor and the ledger.
package logbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/evidence"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/ledger"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/store"
	"github.com/yourorg/evidencelog/internal/temporal"
)

// DefaultMinGapDays is the shortest silence reported as a gap.
const DefaultMinGapDays = 3

type Options struct {
	MinGapDays         int
	RetroThresholdDays int
	// Location is used for report timestamps. Nil means UTC.
	Location *time.Location
}

type Service struct {
	store     store.Store
	clock     clock.Clock
	modes     *evidence.ModeService
	ledger    *ledger.Ledger
	revisions *ledger.StoreRevisionLog
	retro     temporal.Retrospective
	trail     *audit.Trail
	opts      Options
	logger    *slog.Logger
	newID     func() string
}

func New(s store.Store, c clock.Clock, trail *audit.Trail, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinGapDays <= 0 {
		opts.MinGapDays = DefaultMinGapDays
	}
	if opts.RetroThresholdDays <= 0 {
		opts.RetroThresholdDays = temporal.DefaultRetroThresholdDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	revs := ledger.NewStoreRevisionLog(s)
	return &Service{
		store:     s,
		clock:     c,
		modes:     evidence.NewModeService(s, c, logger),
		ledger:    ledger.New(revs, c, logger),
		revisions: revs,
		retro:     temporal.Retrospective{ThresholdDays: opts.RetroThresholdDays},
		trail:     trail,
		opts:      opts,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
	}
}

// Modes exposes the evidence-mode singleton.
func (s *Service) Modes() *evidence.ModeService { return s.modes }

// Trail exposes the audit trail. May be nil.
func (s *Service) Trail() *audit.Trail { return s.trail }

// collection binds a record kind to the collection holding it.
type collection[T records.Record] struct {
	kind records.Kind
	name store.Collection
}

var (
	dailyLogs    = collection[*records.DailyLog]{kind: records.KindDaily, name: store.DailyLogs}
	activityLogs = collection[*records.ActivityLog]{kind: records.KindActivity, name: store.ActivityLogs}
)

func (c collection[T]) load(ctx context.Context, s store.Store, profileID string) ([]T, error) {
	return store.Load[T](ctx, s, profileID, c.name)
}

// save guards the write against before and stores after.
func (c collection[T]) save(ctx context.Context, s store.Store, profileID string, before, after []T) error {
	if err := ledger.GuardCollection(before, after); err != nil {
		return err
	}
	return store.Save(ctx, s, profileID, c.name, after)
}

func (c collection[T]) find(items []T, id string) (int, error) {
	for i, r := range items {
		if r.Meta().ID == id {
			return i, nil
		}
	}
	return -1, faults.NotFound(string(c.kind)+" log", id)
}

func (c collection[T]) get(ctx context.Context, s store.Store, profileID, id string) (T, error) {
	var zero T
	items, err := c.load(ctx, s, profileID)
	if err != nil {
		return zero, err
	}
	i, err := c.find(items, id)
	if err != nil {
		return zero, err
	}
	return items[i], nil
}

func requireProfile(profileID string) (string, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return "", faults.Validation("profile id is required", faults.ValidationItem{
			Code: "LOG-PROF-001", Path: "profileId", Message: "profileId is required",
		})
	}
	return profileID, nil
}

func (s *Service) now() (time.Time, error) {
	now, err := s.clock.Now()
	if err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	return now, nil
}

// record appends an audit entry. Audit failures are logged, never returned:
// the evidence write they describe has already happened.
func (s *Service) record(ctx context.Context, profileID, action, subject, digest string) {
	if _, err := s.trail.Record(ctx, profileID, action, subject, digest); err != nil {
		s.logger.WarnContext(ctx, "audit entry dropped", "action", action, "subject", subject, "error", err)
	}
}

// create stamps, assesses and stores a freshly built record.
func create[T records.Record](ctx context.Context, s *Service, c collection[T], profileID string, rec T, declared records.Declared) (T, error) {
	var zero T
	profileID, err := requireProfile(profileID)
	if err != nil {
		return zero, err
	}
	mode, err := s.modes.Current(ctx)
	if err != nil {
		return zero, err
	}
	now, err := s.now()
	if err != nil {
		return zero, err
	}
	h := rec.Meta()
	h.ID = s.newID()
	h.ProfileID = profileID
	h.CreatedAt = now
	h.UpdatedAt = now
	h.Finalized = false
	h.FinalizedAt = nil
	h.EvidenceTimestamp = nil

	stamped, err := evidence.Stamp(rec, mode, s.clock)
	if err != nil {
		return zero, err
	}
	out := stamped.(T)
	out.Meta().RetrospectiveContext = s.retro.Assess(h.EventDate, now, declared, now)

	items, err := c.load(ctx, s.store, profileID)
	if err != nil {
		return zero, err
	}
	next := append(append(make([]T, 0, len(items)+1), items...), out)
	if err := c.save(ctx, s.store, profileID, items, next); err != nil {
		return zero, err
	}
	s.record(ctx, profileID, "log.create", out.Meta().ID, string(c.kind))
	s.logger.InfoContext(ctx, "log created", "kind", c.kind, "log_id", out.Meta().ID, "profile_id", profileID,
		"stamped", out.Meta().EvidenceTimestamp != nil, "retrospective", out.Meta().RetrospectiveContext != nil)
	return out, nil
}

// update routes an edit through the ledger. Only draft results are written
// back; a finalized record is never rewritten.
func update[T records.Record](ctx context.Context, s *Service, c collection[T], profileID, id, reason string, apply func(T) (T, error)) (ledger.UpdateResult, error) {
	items, err := c.load(ctx, s.store, profileID)
	if err != nil {
		return ledger.UpdateResult{}, err
	}
	i, err := c.find(items, id)
	if err != nil {
		return ledger.UpdateResult{}, err
	}
	proposed, err := apply(items[i])
	if err != nil {
		return ledger.UpdateResult{}, err
	}
	res, err := s.ledger.UpdateWithRevision(ctx, items[i], proposed, reason)
	if err != nil {
		var partial *ledger.PartialRevisionError
		if errors.As(err, &partial) {
			s.record(ctx, profileID, "log.revise.partial", id, fmt.Sprintf("%d/%d", partial.Appended, partial.Attempted))
		}
		return res, err
	}
	if res.NeedsRevision {
		if res.Appended > 0 {
			s.record(ctx, profileID, "log.revise", id, strings.Join(res.AppendedFields, ","))
		}
		return res, nil
	}
	if res.Attempted == 0 {
		return res, nil
	}
	next := append([]T(nil), items...)
	next[i] = res.Record.(T)
	if err := c.save(ctx, s.store, profileID, items, next); err != nil {
		return ledger.UpdateResult{}, err
	}
	s.record(ctx, profileID, "log.update", id, string(c.kind))
	return res, nil
}

func finalize[T records.Record](ctx context.Context, s *Service, c collection[T], profileID, id string) (T, error) {
	var zero T
	items, err := c.load(ctx, s.store, profileID)
	if err != nil {
		return zero, err
	}
	i, err := c.find(items, id)
	if err != nil {
		return zero, err
	}
	out, err := s.ledger.Finalize(ctx, items[i])
	if err != nil {
		return zero, err
	}
	next := append([]T(nil), items...)
	next[i] = out.(T)
	if err := c.save(ctx, s.store, profileID, items, next); err != nil {
		return zero, err
	}
	s.record(ctx, profileID, "log.finalize", id, string(c.kind))
	return next[i], nil
}

// remove deletes the record, then its revision history. A failure between
// the two writes leaves orphan revisions, never a record without history.
func remove[T records.Record](ctx context.Context, s *Service, c collection[T], profileID, id string) (int, error) {
	items, err := c.load(ctx, s.store, profileID)
	if err != nil {
		return 0, err
	}
	i, err := c.find(items, id)
	if err != nil {
		return 0, err
	}
	next := append(items[:i:i], items[i+1:]...)
	if err := c.save(ctx, s.store, profileID, items, next); err != nil {
		return 0, err
	}
	removed, err := s.revisions.DeleteLog(ctx, profileID, id)
	if err != nil {
		return 0, fmt.Errorf("delete revisions of %s: %w", id, err)
	}
	s.record(ctx, profileID, "log.delete", id, fmt.Sprintf("%s revisions=%d", c.kind, removed))
	return removed, nil
}

func (s *Service) CreateDailyLog(ctx context.Context, profileID string, in records.DailyLogInput) (*records.DailyLog, error) {
	rec, err := in.Build()
	if err != nil {
		return nil, err
	}
	return create(ctx, s, dailyLogs, profileID, rec, in.Declared())
}

func (s *Service) CreateActivityLog(ctx context.Context, profileID string, in records.ActivityLogInput) (*records.ActivityLog, error) {
	rec, err := in.Build()
	if err != nil {
		return nil, err
	}
	return create(ctx, s, activityLogs, profileID, rec, in.Declared())
}

func (s *Service) DailyLogs(ctx context.Context, profileID string) ([]*records.DailyLog, error) {
	return dailyLogs.load(ctx, s.store, profileID)
}

func (s *Service) ActivityLogs(ctx context.Context, profileID string) ([]*records.ActivityLog, error) {
	return activityLogs.load(ctx, s.store, profileID)
}

func (s *Service) DailyLog(ctx context.Context, profileID, id string) (*records.DailyLog, error) {
	return dailyLogs.get(ctx, s.store, profileID, id)
}

func (s *Service) ActivityLog(ctx context.Context, profileID, id string) (*records.ActivityLog, error) {
	return activityLogs.get(ctx, s.store, profileID, id)
}

// UpdateDailyLog edits a draft in place or records revisions against a
// finalized log. reason is required for the latter.
func (s *Service) UpdateDailyLog(ctx context.Context, profileID, id string, in records.DailyLogInput, reason string) (ledger.UpdateResult, error) {
	return update(ctx, s, dailyLogs, profileID, id, reason, in.ApplyTo)
}

func (s *Service) UpdateActivityLog(ctx context.Context, profileID, id string, in records.ActivityLogInput, reason string) (ledger.UpdateResult, error) {
	return update(ctx, s, activityLogs, profileID, id, reason, in.ApplyTo)
}

// Get returns any log by kind.
func (s *Service) Get(ctx context.Context, profileID string, kind records.Kind, id string) (records.Record, error) {
	switch kind {
	case records.KindDaily:
		return s.DailyLog(ctx, profileID, id)
	case records.KindActivity:
		return s.ActivityLog(ctx, profileID, id)
	}
	return nil, unknownKind(kind)
}

func (s *Service) Finalize(ctx context.Context, profileID string, kind records.Kind, id string) (records.Record, error) {
	switch kind {
	case records.KindDaily:
		return finalize(ctx, s, dailyLogs, profileID, id)
	case records.KindActivity:
		return finalize(ctx, s, activityLogs, profileID, id)
	}
	return nil, unknownKind(kind)
}

// Delete removes a whole record and its revisions, returning how many
// revisions went with it.
func (s *Service) Delete(ctx context.Context, profileID string, kind records.Kind, id string) (int, error) {
	switch kind {
	case records.KindDaily:
		return remove(ctx, s, dailyLogs, profileID, id)
	case records.KindActivity:
		return remove(ctx, s, activityLogs, profileID, id)
	}
	return 0, unknownKind(kind)
}

func (s *Service) CanModify(ctx context.Context, profileID string, kind records.Kind, id string) (ledger.Permission, error) {
	r, err := s.Get(ctx, profileID, kind, id)
	if err != nil {
		return ledger.Permission{}, err
	}
	return ledger.CanModify(r), nil
}

// Entry returns the record in its lifecycle state.
func (s *Service) Entry(ctx context.Context, profileID string, kind records.Kind, id string) (ledger.Entry, error) {
	r, err := s.Get(ctx, profileID, kind, id)
	if err != nil {
		return nil, err
	}
	return s.ledger.Entry(ctx, r)
}

func (s *Service) Revisions(ctx context.Context, profileID, logID string) ([]ledger.Revision, error) {
	return s.ledger.Revisions(ctx, profileID, logID)
}

// VerifyRevisions checks every log's revision chain for the profile.
func (s *Service) VerifyRevisions(ctx context.Context, profileID string) error {
	all, err := s.revisions.All(ctx, profileID)
	if err != nil {
		return err
	}
	byLog := map[string][]ledger.Revision{}
	var order []string
	for _, rev := range all {
		if _, ok := byLog[rev.LogID]; !ok {
			order = append(order, rev.LogID)
		}
		byLog[rev.LogID] = append(byLog[rev.LogID], rev)
	}
	for _, id := range order {
		if err := ledger.VerifyChain(byLog[id]); err != nil {
			return err
		}
	}
	return nil
}

func unknownKind(kind records.Kind) error {
	return faults.Validation("unknown log kind", faults.ValidationItem{
		Code: "LOG-KIND-001", Path: "kind", Message: "kind must be daily or activity, got " + string(kind),
	})
}
