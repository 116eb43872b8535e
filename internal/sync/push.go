// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/events"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
)

// Audit note texts.
const (
	syncedNoteFormat = "Case synchronized with Creatio. Creatio ID: %s"
	failedNoteFormat = "Failed to sync with Creatio. Will retry later. Error: %s"
)

type pushOutcome int

const (
	pushSynced pushOutcome = iota
	pushFailed
	pushClaimed
	// pushAborted means the case could not be claimed because of a store error.
	pushAborted
)

func (o *Orchestrator) pushPending(ctx context.Context, result *PassResult) error {
	now := o.now()
	cases, err := o.store.ListPushable(ctx, o.companyID, now.Add(-o.opts.ClaimLease))
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx, result)
		}
		return fmt.Errorf("list pushable cases: %w", err)
	}

	for i := range cases {
		if ctx.Err() != nil {
			return interrupted(ctx, result)
		}
		outcome, err := o.pushCase(ctx, cases[i].ID)
		switch outcome {
		case pushSynced:
			result.Synced++
		case pushClaimed:
			result.Claimed++
		case pushFailed:
			result.Failed++
		case pushAborted:
			if ctx.Err() != nil {
				return interrupted(ctx, result)
			}
			result.Failed++
			logging.CtxErr(ctx, err).Int64("case_id", cases[i].ID).Msg("Failed to claim case for push")
		}
	}
	return nil
}

// pushCase claims a case and sends it to the CRM: a create when it has no
// remote id yet, an update otherwise. Failures are recorded on the case.
func (o *Orchestrator) pushCase(ctx context.Context, caseID int64) (pushOutcome, error) {
	claimedAt := o.now()
	ok, err := o.store.ClaimForPush(ctx, caseID, claimedAt, claimedAt.Add(-o.opts.ClaimLease))
	if err != nil {
		return pushAborted, err
	}
	if !ok {
		logging.CtxInfo(ctx).Int64("case_id", caseID).Msg("Case claimed by another worker or no longer pending, skipping")
		return pushClaimed, ErrCaseClaimed
	}

	// Bookkeeping must land even when the pass deadline expired mid-call.
	bg := context.WithoutCancel(ctx)

	// The payload and the create/update choice come from the claimed row, not
	// from the pass listing: other workers may have pushed or edited the case
	// since.
	c, err := o.store.GetCase(ctx, caseID)
	if err != nil {
		if relErr := o.store.MarkPushFailed(bg, caseID, claimedAt, err.Error()); relErr != nil {
			logging.CtxErr(ctx, relErr).Int64("case_id", caseID).Msg("Failed to release push claim")
		}
		return pushAborted, fmt.Errorf("reload claimed case %d: %w", caseID, err)
	}

	create := !c.HasRemote()
	op := "update"
	if create {
		op = "create"
	}
	fields := o.translator.ToRemote(ctx, c, create)

	remoteID := c.RemoteID
	var pushErr error
	if create {
		remoteID, pushErr = o.remote.CreateCase(ctx, fields)
	} else {
		pushErr = o.remote.UpdateCase(ctx, remoteID, fields)
	}
	metrics.RecordPush(op, pushErr)

	if pushErr != nil {
		o.recordPushFailure(bg, c, claimedAt, pushErr)
		return pushFailed, pushErr
	}

	if err := o.store.MarkSynced(bg, c.ID, claimedAt, remoteID, o.now()); err != nil {
		logging.CtxErr(ctx, err).Str("case", c.CaseNumber).Str("remote_id", remoteID).Str("operation", op).
			Msg("Case pushed but local sync state could not be saved")
		if errors.Is(err, store.ErrClaimLost) {
			return pushClaimed, err
		}
		return pushFailed, fmt.Errorf("record push of case %s: %w", c.CaseNumber, err)
	}

	o.addSystemNote(bg, c.ID, fmt.Sprintf(syncedNoteFormat, remoteID))
	logging.CtxInfo(ctx).Str("case", c.CaseNumber).Str("remote_id", remoteID).Str("operation", op).
		Msg("Case synchronized")
	o.emit(bg, events.CaseSynced{
		CompanyID:  o.companyID,
		CaseID:     c.ID,
		CaseNumber: c.CaseNumber,
		RemoteID:   remoteID,
		Created:    create,
		At:         o.now(),
	})
	return pushSynced, nil
}

func (o *Orchestrator) recordPushFailure(ctx context.Context, c *models.LocalCase, claimedAt time.Time, pushErr error) {
	logging.CtxWarn(ctx).Err(pushErr).Str("case", c.CaseNumber).Msg("Case push failed, will retry next pass")

	if err := o.store.MarkPushFailed(ctx, c.ID, claimedAt, pushErr.Error()); err != nil {
		logging.CtxErr(ctx, err).Str("case", c.CaseNumber).Msg("Failed to record push failure")
		if errors.Is(err, store.ErrClaimLost) {
			return
		}
	}
	o.addSystemNote(ctx, c.ID, fmt.Sprintf(failedNoteFormat, pushErr.Error()))
	o.emit(ctx, events.CaseSyncFailed{
		CompanyID:  o.companyID,
		CaseID:     c.ID,
		CaseNumber: c.CaseNumber,
		Error:      pushErr.Error(),
		At:         o.now(),
	})
}

func (o *Orchestrator) addSystemNote(ctx context.Context, caseID int64, content string) {
	_, err := o.store.AddNote(ctx, models.Note{
		CaseID:   caseID,
		Author:   o.opts.NoteAuthor,
		Content:  content,
		IsSystem: true,
	})
	if err != nil {
		logging.CtxErr(ctx, err).Int64("case_id", caseID).Msg("Failed to add sync note")
	}
}

// PushOne pushes a single case on demand, whatever its current sync state,
// and returns the case as stored afterwards. A push failure is returned
// together with the updated case.
func (o *Orchestrator) PushOne(ctx context.Context, caseID int64) (*models.LocalCase, error) {
	c, err := o.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextWithCompanyID(ctx, o.companyID)

	if c.SyncStatus == models.SyncSynced {
		if err := o.store.MarkPending(ctx, c.ID); err != nil {
			return nil, err
		}
	}

	outcome, pushErr := o.pushCase(ctx, c.ID)
	if outcome == pushAborted {
		return nil, pushErr
	}
	updated, err := o.store.GetCase(context.WithoutCancel(ctx), caseID)
	if err != nil {
		return nil, err
	}
	return updated, pushErr
}

// PushNote posts a user note of a synced case as a CRM comment. Notes that
// were already posted are returned unchanged.
func (o *Orchestrator) PushNote(ctx context.Context, noteID int64) (*models.Note, error) {
	n, err := o.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if n.IsSystem {
		return nil, ErrSystemNote
	}
	if n.RemoteID != "" {
		return n, nil
	}
	c, err := o.loadCase(ctx, n.CaseID)
	if err != nil {
		return nil, err
	}
	if !c.HasRemote() {
		return nil, ErrNoRemote
	}

	remoteID, err := o.remote.AddComment(ctx, crm.Comment{
		CaseID:    c.RemoteID,
		Message:   n.Content,
		CreatedBy: n.Author,
		CreatedOn: n.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("post note %d: %w", n.ID, err)
	}
	if remoteID != "" {
		if err := o.store.SetNoteRemoteID(context.WithoutCancel(ctx), n.ID, remoteID); err != nil {
			return nil, err
		}
		n.RemoteID = remoteID
	}
	return n, nil
}

func (o *Orchestrator) loadCase(ctx context.Context, caseID int64) (*models.LocalCase, error) {
	c, err := o.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.CompanyID != o.companyID {
		return nil, errors.Join(ErrWrongCompany, fmt.Errorf("case %d", caseID))
	}
	return c, nil
}
