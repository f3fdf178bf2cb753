package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/review"
	"github.com/reclaim-hq/reclaim/pkg/eventbus"
	"github.com/reclaim-hq/reclaim/pkg/scheduler"
	"github.com/reclaim-hq/reclaim/pkg/serrors"
)

// undoWindow bounds the skip-undo affordance surfaced to the UI.
const undoWindow = 5 * time.Second

var (
	ErrSessionNotFound = serrors.NewError(
		"SESSION_NOT_FOUND",
		"no review session for this run; start one first",
		"BulkImport.Errors.SessionNotFound",
	)
	ErrGroupBusy = serrors.NewError(
		"GROUP_BUSY",
		"another action on this group is still in flight",
		"BulkImport.Errors.GroupBusy",
	)
	ErrGroupNotFound = serrors.NewError(
		"GROUP_NOT_FOUND",
		"group not found in this run",
		"BulkImport.Errors.GroupNotFound",
	)
)

type reviewSession struct {
	runID      uuid.UUID
	mode       review.Mode
	locCtx     *review.LocationContext
	selections map[uuid.UUID]review.Selection
	confirms   map[uuid.UUID]bool
	busy       map[uuid.UUID]bool
	undoUntil  map[uuid.UUID]time.Time
	counters   importrun.Counters
	finalized  bool
}

// ReviewService coordinates group-level review actions on top of the item
// state machine, keeping the item store and backend run counters consistent.
type ReviewService struct {
	runs  importrun.Repository
	store *ItemStoreService
	bus   eventbus.EventBus
	sched scheduler.Scheduler
	log   *logrus.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*reviewSession
}

func NewReviewService(
	runs importrun.Repository,
	store *ItemStoreService,
	bus eventbus.EventBus,
	sched scheduler.Scheduler,
	log *logrus.Logger,
) *ReviewService {
	return &ReviewService{
		runs:     runs,
		store:    store,
		bus:      bus,
		sched:    sched,
		log:      log,
		sessions: make(map[uuid.UUID]*reviewSession),
	}
}

type GroupView struct {
	Key                      uuid.UUID
	Name                     string
	State                    review.GroupState
	IsSynthetic              bool
	Busy                     bool
	AcceptedCount            int
	Location                 *importitem.ImportItem
	Children                 []importitem.ImportItem
	Selected                 []uuid.UUID
	DuplicateConfirmed       bool
	HasUnconfirmedDuplicates bool
	UndoUntil                *time.Time
}

type SessionView struct {
	Run         importrun.ImportRun
	Counters    importrun.Counters
	Groups      []GroupView
	CanFinalize bool
}

// StartSession loads the run's items and initializes review state: every
// group pending, all valid children selected, duplicate confirmations off.
// A finalized run opens read-only.
func (s *ReviewService) StartSession(ctx context.Context, runID uuid.UUID, mode review.Mode, locCtx *review.LocationContext) (SessionView, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return SessionView{}, err
	}
	switch run.Status() {
	case importrun.StatusReviewReady, importrun.StatusDone:
	default:
		return SessionView{}, importrun.ErrRunNotReviewReady
	}

	items, err := s.store.Load(ctx, runID, nil)
	if err != nil {
		return SessionView{}, err
	}
	counters, err := s.runs.Counters(ctx, runID)
	if err != nil {
		return SessionView{}, err
	}

	sess := &reviewSession{
		runID:      runID,
		mode:       mode,
		locCtx:     locCtx,
		selections: make(map[uuid.UUID]review.Selection),
		confirms:   make(map[uuid.UUID]bool),
		busy:       make(map[uuid.UUID]bool),
		undoUntil:  make(map[uuid.UUID]time.Time),
		counters:   counters,
		finalized:  run.Status() == importrun.StatusDone,
	}
	for _, g := range review.BuildGroups(items, mode, locCtx) {
		sess.selections[g.Key()] = review.FullSelection(g)
	}

	s.mu.Lock()
	s.sessions[runID] = sess
	s.mu.Unlock()

	return s.View(ctx, runID)
}

// EndSession drops session state and the item snapshot.
func (s *ReviewService) EndSession(runID uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, runID)
	s.mu.Unlock()
	s.store.Drop(runID)
}

// View projects the current session: groups with derived states, selections
// and readiness. Always recomputed from the item store, never cached.
func (s *ReviewService) View(ctx context.Context, runID uuid.UUID) (SessionView, error) {
	s.mu.Lock()
	sess, ok := s.sessions[runID]
	if !ok {
		s.mu.Unlock()
		return SessionView{}, ErrSessionNotFound
	}
	groups := s.groupsLocked(sess)
	views := make([]GroupView, 0, len(groups))
	now := s.sched.Now()
	for _, g := range groups {
		key := g.Key()
		view := GroupView{
			Key:                      key,
			Name:                     g.Name(),
			State:                    review.DeriveState(g),
			IsSynthetic:              g.IsSynthetic,
			Busy:                     sess.busy[key],
			AcceptedCount:            review.AcceptedCount(g),
			Location:                 g.Location,
			Children:                 g.Children,
			Selected:                 selectedIDs(sess.selectionLocked(g)),
			DuplicateConfirmed:       sess.confirms[key],
			HasUnconfirmedDuplicates: g.HasUnconfirmedDuplicates(),
		}
		if until, ok := sess.undoUntil[key]; ok && until.After(now) {
			view.UndoUntil = &until
		}
		views = append(views, view)
	}
	counters := sess.counters
	canFinalize := !sess.finalized && review.CanFinalize(groups)
	s.mu.Unlock()

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{
		Run:         run,
		Counters:    counters,
		Groups:      views,
		CanFinalize: canFinalize,
	}, nil
}

// Add accepts the group: the location record (unless synthetic), selected
// children, and rejects unselected ones. Groups with unconfirmed duplicates
// are refused before any backend call.
func (s *ReviewService) Add(ctx context.Context, runID, groupKey uuid.UUID) error {
	sess, group, err := s.beginGroupAction(runID, groupKey)
	if err != nil {
		return err
	}
	defer s.endGroupAction(sess, groupKey)

	s.mu.Lock()
	confirmed := sess.confirms[groupKey]
	selection := sess.selectionLocked(group)
	s.mu.Unlock()

	if group.HasUnconfirmedDuplicates() && !confirmed {
		return importitem.ErrDuplicateUnconfirmed
	}

	confirmOpt := confirmOption(confirmed)
	if !group.IsSynthetic && group.Location.Reviewable() {
		if err := s.patch(ctx, group.Location.ID(), importitem.ActionAccept, importitem.ApplyOptions{ConfirmCreateNew: confirmOpt}); err != nil {
			return err
		}
	}
	for _, child := range group.ReviewableChildren() {
		action := importitem.ActionReject
		var opts importitem.ApplyOptions
		if selection.Has(child.ID()) {
			action = importitem.ActionAccept
			opts.ConfirmCreateNew = confirmOpt
		}
		if err := s.patch(ctx, child.ID(), action, opts); err != nil {
			return err
		}
	}
	return s.refreshCounters(ctx, sess)
}

// Skip rejects the whole group. The returned time bounds the undo affordance.
func (s *ReviewService) Skip(ctx context.Context, runID, groupKey uuid.UUID) (time.Time, error) {
	sess, group, err := s.beginGroupAction(runID, groupKey)
	if err != nil {
		return time.Time{}, err
	}
	defer s.endGroupAction(sess, groupKey)

	if !group.IsSynthetic && group.Location.Reviewable() {
		// Children cascade server-side; the store reloads itself.
		if err := s.patch(ctx, group.Location.ID(), importitem.ActionReject, importitem.ApplyOptions{}); err != nil {
			return time.Time{}, err
		}
	} else {
		// Synthetic locations are never patched; only their children are.
		for _, child := range group.ReviewableChildren() {
			if err := s.patch(ctx, child.ID(), importitem.ActionReject, importitem.ApplyOptions{}); err != nil {
				return time.Time{}, err
			}
		}
	}

	until := s.sched.Now().Add(undoWindow)
	s.mu.Lock()
	sess.undoUntil[groupKey] = until
	s.mu.Unlock()
	if err := s.refreshCounters(ctx, sess); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Undo resets the group to pending: location and children back to
// pending_review, full child selection, duplicate confirmation cleared.
// Idempotent with respect to end state, and valid from added or skipped.
func (s *ReviewService) Undo(ctx context.Context, runID, groupKey uuid.UUID) error {
	sess, group, err := s.beginGroupAction(runID, groupKey)
	if err != nil {
		return err
	}
	defer s.endGroupAction(sess, groupKey)

	if !group.IsSynthetic && group.Location.Reviewable() {
		if err := s.patch(ctx, group.Location.ID(), importitem.ActionReset, importitem.ApplyOptions{}); err != nil {
			return err
		}
	}
	for _, child := range group.ReviewableChildren() {
		if err := s.patch(ctx, child.ID(), importitem.ActionReset, importitem.ApplyOptions{}); err != nil {
			return err
		}
	}

	s.mu.Lock()
	sess.selections[groupKey] = review.FullSelection(group)
	sess.confirms[groupKey] = false
	delete(sess.undoUntil, groupKey)
	s.mu.Unlock()
	return s.refreshCounters(ctx, sess)
}

// AddAll applies Add to every pending group, silently leaving groups with
// unconfirmed duplicates pending for manual handling.
func (s *ReviewService) AddAll(ctx context.Context, runID uuid.UUID) (added, left int, err error) {
	s.mu.Lock()
	sess, ok := s.sessions[runID]
	if !ok {
		s.mu.Unlock()
		return 0, 0, ErrSessionNotFound
	}
	var pending []review.Group
	for _, g := range s.groupsLocked(sess) {
		if review.DeriveState(g) == review.StatePending {
			pending = append(pending, g)
		}
	}
	confirms := make(map[uuid.UUID]bool, len(pending))
	for _, g := range pending {
		confirms[g.Key()] = sess.confirms[g.Key()]
	}
	s.mu.Unlock()

	for _, g := range pending {
		if g.HasUnconfirmedDuplicates() && !confirms[g.Key()] {
			left++
			continue
		}
		if err := s.Add(ctx, runID, g.Key()); err != nil {
			return added, left, err
		}
		added++
	}
	return added, left, nil
}

// ToggleChild flips a child's membership in the group's selection set. Purely
// local; only the next Add reads it.
func (s *ReviewService) ToggleChild(runID, groupKey, childID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[runID]
	if !ok {
		return false, ErrSessionNotFound
	}
	group, ok := s.findGroupLocked(sess, groupKey)
	if !ok {
		return false, ErrGroupNotFound
	}
	selection := sess.selectionLocked(group)
	sess.selections[groupKey] = selection
	return selection.Toggle(childID), nil
}

// ConfirmCreateNew flips the group's duplicate-confirm flag. Items already
// decided get their current action re-issued so the override is persisted,
// not merely held locally; a failed persist rolls the flag back.
func (s *ReviewService) ConfirmCreateNew(ctx context.Context, runID, groupKey uuid.UUID, confirm bool) error {
	s.mu.Lock()
	sess, ok := s.sessions[runID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.finalized {
		s.mu.Unlock()
		return importrun.ErrRunFinalized
	}
	group, ok := s.findGroupLocked(sess, groupKey)
	if !ok {
		s.mu.Unlock()
		return ErrGroupNotFound
	}
	prev := sess.confirms[groupKey]
	sess.confirms[groupKey] = confirm
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		sess.confirms[groupKey] = prev
		s.mu.Unlock()
	}

	var members []importitem.ImportItem
	if !group.IsSynthetic {
		members = append(members, *group.Location)
	}
	members = append(members, group.Children...)
	for _, item := range members {
		if !item.HasDuplicates() {
			continue
		}
		action, ok := reissueAction(item.Status())
		if !ok {
			// Pending items carry the flag on their next Add.
			continue
		}
		opts := importitem.ApplyOptions{ConfirmCreateNew: &confirm}
		if err := s.patch(ctx, item.ID(), action, opts); err != nil {
			rollback()
			return err
		}
	}
	return nil
}

// Readiness reports whether finalization is allowed: no pending groups and at
// least one group with accepted content.
func (s *ReviewService) Readiness(runID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[runID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if sess.finalized {
		return false, nil
	}
	return review.CanFinalize(s.groupsLocked(sess)), nil
}

// MarkFinalized flips the session read-only after a successful finalize.
func (s *ReviewService) MarkFinalized(runID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[runID]; ok {
		sess.finalized = true
	}
}

func (s *ReviewService) patch(ctx context.Context, itemID uuid.UUID, action importitem.ReviewAction, opts importitem.ApplyOptions) error {
	item, err := s.store.Patch(ctx, itemID, action, opts)
	if err != nil {
		return err
	}
	itemsReviewed.WithLabelValues(string(action)).Inc()
	s.bus.Publish(importitem.ReviewedEvent{Item: item, Action: action})
	return nil
}

func (s *ReviewService) refreshCounters(ctx context.Context, sess *reviewSession) error {
	counters, err := s.runs.Counters(ctx, sess.runID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	sess.counters = counters
	s.mu.Unlock()
	return nil
}

func (s *ReviewService) beginGroupAction(runID, groupKey uuid.UUID) (*reviewSession, review.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[runID]
	if !ok {
		return nil, review.Group{}, ErrSessionNotFound
	}
	if sess.finalized {
		return nil, review.Group{}, importrun.ErrRunFinalized
	}
	if sess.busy[groupKey] {
		return nil, review.Group{}, ErrGroupBusy
	}
	group, ok := s.findGroupLocked(sess, groupKey)
	if !ok {
		return nil, review.Group{}, ErrGroupNotFound
	}
	sess.busy[groupKey] = true
	return sess, group, nil
}

func (s *ReviewService) endGroupAction(sess *reviewSession, groupKey uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(sess.busy, groupKey)
}

func (s *ReviewService) groupsLocked(sess *reviewSession) []review.Group {
	return review.BuildGroups(s.store.Items(sess.runID), sess.mode, sess.locCtx)
}

func (s *ReviewService) findGroupLocked(sess *reviewSession, groupKey uuid.UUID) (review.Group, bool) {
	for _, g := range s.groupsLocked(sess) {
		if g.Key() == groupKey {
			return g, true
		}
	}
	return review.Group{}, false
}

// selectionLocked returns the stored selection or the full default.
func (sess *reviewSession) selectionLocked(g review.Group) review.Selection {
	if sel, ok := sess.selections[g.Key()]; ok {
		return sel
	}
	sel := review.FullSelection(g)
	sess.selections[g.Key()] = sel
	return sel
}

func selectedIDs(sel review.Selection) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(sel))
	for id := range sel {
		out = append(out, id)
	}
	return out
}

func confirmOption(confirmed bool) *bool {
	if !confirmed {
		return nil
	}
	v := true
	return &v
}

func reissueAction(status importitem.Status) (importitem.ReviewAction, bool) {
	switch status {
	case importitem.StatusAccepted:
		return importitem.ActionAccept, true
	case importitem.StatusAmended:
		return importitem.ActionAmend, true
	case importitem.StatusRejected:
		return importitem.ActionReject, true
	}
	return "", false
}
