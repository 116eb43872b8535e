// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/events"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
	"github.com/tomtom215/casesync/internal/models"
)

// Mode selects how much remote state a pass pulls.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// CaseStore is the local case repository used by passes.
type CaseStore interface {
	GetCase(ctx context.Context, id int64) (*models.LocalCase, error)
	ListPushable(ctx context.Context, companyID int64, staleBefore time.Time) ([]models.LocalCase, error)
	ClaimForPush(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error)
	MarkPending(ctx context.Context, id int64) error
	MarkSynced(ctx context.Context, id int64, claimedAt time.Time, remoteID string, at time.Time) error
	MarkPushFailed(ctx context.Context, id int64, claimedAt time.Time, errText string) error
	FindByRemoteID(ctx context.Context, companyID int64, remoteID string) (*models.LocalCase, error)
	ApplyRemoteUpdate(ctx context.Context, id int64, u models.CaseUpdate, at time.Time) (bool, error)
	MaxLastSynced(ctx context.Context, companyID int64) (*time.Time, error)
	TouchCompanySync(ctx context.Context, companyID int64, at time.Time) error

	AddNote(ctx context.Context, n models.Note) (*models.Note, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)
	SetNoteRemoteID(ctx context.Context, id int64, remoteID string) error
}

// RemoteCases is the CRM case API used by passes.
type RemoteCases interface {
	CreateCase(ctx context.Context, fields map[string]interface{}) (string, error)
	UpdateCase(ctx context.Context, id string, fields map[string]interface{}) error
	GetCase(ctx context.Context, id string) (*crm.RemoteCase, error)
	AddComment(ctx context.Context, c crm.Comment) (string, error)
	ListModifiedSince(ctx context.Context, since *time.Time) ([]crm.RemoteCase, error)
}

// Translator maps cases between local and remote representations.
type Translator interface {
	ToRemote(ctx context.Context, c *models.LocalCase, create bool) map[string]interface{}
	FromRemote(r *crm.RemoteCase) models.CaseUpdate
}

// Authenticator obtains bearer tokens for the tenant.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// EventSink receives sync events. Emit errors never fail a pass.
type EventSink interface {
	Emit(ctx context.Context, e events.Event) error
}

// Options tunes an Orchestrator.
type Options struct {
	// PassTimeout bounds one RunPass call. 0 means no deadline.
	PassTimeout time.Duration

	// ClaimLease is how long another worker's in-flight claim is honoured.
	// Default: 10m
	ClaimLease time.Duration

	// NoteAuthor is recorded on audit notes. Default: "system"
	NoteAuthor string
}

// Orchestrator runs sync passes for one company.
type Orchestrator struct {
	companyID  int64
	store      CaseStore
	remote     RemoteCases
	translator Translator
	auth       Authenticator
	events     EventSink
	locks      *companyLocks
	opts       Options
	now        func() time.Time
}

// NewOrchestrator creates an Orchestrator for companyID. events may be nil.
func NewOrchestrator(companyID int64, store CaseStore, remote RemoteCases, translator Translator, auth Authenticator, sink EventSink, opts Options) *Orchestrator {
	return newOrchestrator(companyID, store, remote, translator, auth, sink, opts, newCompanyLocks())
}

func newOrchestrator(companyID int64, store CaseStore, remote RemoteCases, translator Translator, auth Authenticator, sink EventSink, opts Options, locks *companyLocks) *Orchestrator {
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 10 * time.Minute
	}
	if opts.NoteAuthor == "" {
		opts.NoteAuthor = "system"
	}
	return &Orchestrator{
		companyID:  companyID,
		store:      store,
		remote:     remote,
		translator: translator,
		auth:       auth,
		events:     sink,
		locks:      locks,
		opts:       opts,
		now:        time.Now,
	}
}

// CompanyID returns the company this orchestrator serves.
func (o *Orchestrator) CompanyID() int64 { return o.companyID }

// PassResult summarizes one pass.
type PassResult struct {
	CompanyID int64 `json:"company_id"`
	Mode      Mode  `json:"mode"`

	Synced  int `json:"synced_count"`
	Failed  int `json:"failed_count"`
	Claimed int `json:"claimed_elsewhere"`

	Pulled          int    `json:"pulled"`
	Reconciled      int    `json:"reconciled"`
	Skipped         int    `json:"skipped"`
	ReconcileFailed int    `json:"reconcile_failed"`
	PullError       string `json:"pull_error,omitempty"`

	// Interrupted is set when the pass deadline or cancellation stopped
	// the pass before all work was done.
	Interrupted bool `json:"interrupted"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Message is the operator-facing summary of the push phase.
func (r *PassResult) Message() string {
	return fmt.Sprintf("Synced %d cases, %d failed", r.Synced, r.Failed)
}

// RunPass pushes pending cases and then pulls remote changes.
//
// Per-case push and reconcile failures are recorded and counted, never
// returned. An error is returned when the pass could not run at all (another
// pass holds the company, authentication failed) or when the pass deadline
// expired; in the latter case the partial result is returned too.
func (o *Orchestrator) RunPass(ctx context.Context, mode Mode) (*PassResult, error) {
	if mode != ModeFull {
		mode = ModeIncremental
	}
	if !o.locks.TryLock(o.companyID) {
		metrics.SyncPassesTotal.WithLabelValues(string(mode), "busy").Inc()
		return nil, ErrPassInProgress
	}
	defer o.locks.Unlock(o.companyID)

	ctx = logging.ContextWithNewCorrelationID(ctx)
	ctx = logging.ContextWithLogger(ctx, logging.WithComponent("sync"))
	ctx = logging.ContextWithCompanyID(ctx, o.companyID)
	if o.opts.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.PassTimeout)
		defer cancel()
	}

	result := &PassResult{CompanyID: o.companyID, Mode: mode, StartedAt: o.now()}
	logging.CtxInfo(ctx).Str("mode", string(mode)).Msg("Sync pass started")

	err := o.runPass(ctx, mode, result)
	result.Duration = o.now().Sub(result.StartedAt)
	o.finishPass(ctx, result, err)
	return result, err
}

func (o *Orchestrator) runPass(ctx context.Context, mode Mode, result *PassResult) error {
	if o.auth != nil {
		if _, err := o.auth.Token(ctx); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}

	// The pull boundary is read before pushing: pushes move last_synced to
	// now and would hide remote changes made since the previous pass.
	var since *time.Time
	if mode == ModeIncremental {
		t, err := o.store.MaxLastSynced(ctx, o.companyID)
		if err != nil {
			return err
		}
		since = t
	}

	if err := o.pushPending(ctx, result); err != nil {
		return err
	}
	return o.pull(ctx, since, result)
}

func (o *Orchestrator) finishPass(ctx context.Context, result *PassResult, err error) {
	bg := context.WithoutCancel(ctx)
	outcome := "completed"
	switch {
	case err == nil:
		if terr := o.store.TouchCompanySync(bg, o.companyID, o.now()); terr != nil {
			logging.CtxErr(ctx, terr).Msg("Failed to record company sync time")
		}
		metrics.LastSuccessfulPass.WithLabelValues(strconv.FormatInt(o.companyID, 10)).SetToCurrentTime()
	case result.Interrupted:
		outcome = "interrupted"
	default:
		outcome = "failed"
	}
	metrics.RecordPass(string(result.Mode), outcome, result.Duration)

	ev := logging.CtxInfo(ctx)
	if err != nil {
		ev = logging.CtxErr(ctx, err)
	}
	ev.Str("mode", string(result.Mode)).
		Str("outcome", outcome).
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Int("pulled", result.Pulled).
		Int("reconciled", result.Reconciled).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Sync pass finished")

	completed := events.PassCompleted{
		CompanyID:     o.companyID,
		Mode:          string(result.Mode),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		Synced:        result.Synced,
		Failed:        result.Failed,
		Pulled:        result.Pulled,
		Reconciled:    result.Reconciled,
		Skipped:       result.Skipped,
		DurationMs:    result.Duration.Milliseconds(),
		At:            o.now(),
	}
	if err != nil {
		completed.Error = err.Error()
	}
	o.emit(bg, completed)
}

func (o *Orchestrator) emit(ctx context.Context, e events.Event) {
	if o.events == nil {
		return
	}
	if err := o.events.Emit(ctx, e); err != nil {
		logging.CtxWarn(ctx).Err(err).Str("event", e.TopicSuffix()).Msg("Failed to publish sync event")
	}
}

// interrupted marks the result and returns the context error.
func interrupted(ctx context.Context, result *PassResult) error {
	result.Interrupted = true
	return ctx.Err()
}
