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
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
)

// pull fetches remote cases modified after since (all when nil) and
// reconciles them one by one. A failed listing is recorded on the result
// and does not fail the pass.
func (o *Orchestrator) pull(ctx context.Context, since *time.Time, result *PassResult) error {
	if ctx.Err() != nil {
		return interrupted(ctx, result)
	}

	ev := logging.Ctx(ctx).Debug()
	if since != nil {
		ev = ev.Time("since", *since)
	}
	ev.Msg("Pulling remote cases")

	records, err := o.remote.ListModifiedSince(ctx, since)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx, result)
		}
		result.PullError = err.Error()
		logging.CtxErr(ctx, err).Msg("Pull of remote cases failed")
		return nil
	}
	result.Pulled = len(records)

	for i := range records {
		if ctx.Err() != nil {
			return interrupted(ctx, result)
		}
		rc := &records[i]
		err := o.reconcile(ctx, rc)
		switch {
		case err == nil:
			result.Reconciled++
			metrics.RemoteRecordsPulled.WithLabelValues("reconciled").Inc()
		case errors.Is(err, ErrNotFoundLocally):
			result.Skipped++
			metrics.RemoteRecordsPulled.WithLabelValues("not_found").Inc()
			logging.Ctx(ctx).Debug().Str("remote_id", rc.ID).Msg("Remote case not found locally, skipping")
		case errors.Is(err, ErrLocalChangesPending):
			result.Skipped++
			metrics.RemoteRecordsPulled.WithLabelValues("skipped").Inc()
			logging.Ctx(ctx).Debug().Str("remote_id", rc.ID).Msg("Local case has unpushed changes, skipping")
		default:
			if ctx.Err() != nil {
				return interrupted(ctx, result)
			}
			result.ReconcileFailed++
			metrics.RemoteRecordsPulled.WithLabelValues("failure").Inc()
			logging.CtxErr(ctx, err).Str("remote_id", rc.ID).Msg("Failed to reconcile remote case")
		}
	}
	return nil
}

func (o *Orchestrator) reconcile(ctx context.Context, rc *crm.RemoteCase) error {
	if rc.ID == "" {
		return ErrNotFoundLocally
	}
	local, err := o.store.FindByRemoteID(ctx, o.companyID, rc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFoundLocally
	}
	if err != nil {
		return err
	}
	return o.applyRemote(ctx, local, rc)
}

// applyRemote overwrites local with the remote values. Cases with unpushed
// local changes are left alone.
func (o *Orchestrator) applyRemote(ctx context.Context, local *models.LocalCase, rc *crm.RemoteCase) error {
	if local.SyncStatus != models.SyncSynced {
		return ErrLocalChangesPending
	}
	applied, err := o.store.ApplyRemoteUpdate(ctx, local.ID, o.translator.FromRemote(rc), o.now())
	if err != nil {
		return err
	}
	if !applied {
		// Edited between the read and the write.
		return ErrLocalChangesPending
	}
	return nil
}

// RefreshCase pulls the remote state of one case and applies it.
func (o *Orchestrator) RefreshCase(ctx context.Context, caseID int64) (*models.LocalCase, error) {
	local, err := o.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !local.HasRemote() {
		return nil, ErrNoRemote
	}
	ctx = logging.ContextWithCompanyID(ctx, o.companyID)

	rc, err := o.remote.GetCase(ctx, local.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("read remote case %s: %w", local.RemoteID, err)
	}
	if err := o.applyRemote(ctx, local, rc); err != nil {
		return nil, err
	}
	logging.CtxInfo(ctx).Str("case", local.CaseNumber).Str("remote_id", local.RemoteID).Msg("Case refreshed from CRM")
	return o.store.GetCase(ctx, caseID)
}
