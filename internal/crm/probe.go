// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"context"

	"github.com/tomtom215/casesync/internal/logging"
)

// ProbeSuccessMessage is reported when the connection check passes.
const ProbeSuccessMessage = "Connection successful - OAuth token obtained and API accessible"

// ProbeResult is the outcome of a connection check.
type ProbeResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Probe checks that a tenant can authenticate and read one case.
type Probe struct {
	tokens *TokenManager
	cases  *CaseAPI
}

// NewProbe creates a Probe.
func NewProbe(tokens *TokenManager, cases *CaseAPI) *Probe {
	return &Probe{tokens: tokens, cases: cases}
}

// Test runs the check. It never returns an error; failures are described in
// the result message.
func (p *Probe) Test(ctx context.Context) ProbeResult {
	if _, err := p.tokens.Token(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Connection test: token acquisition failed")
		return ProbeResult{OK: false, Message: "Connection test failed: " + err.Error()}
	}
	if err := p.cases.ReadOne(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Connection test: representative read failed")
		return ProbeResult{OK: false, Message: "Connection test failed: " + err.Error()}
	}
	return ProbeResult{OK: true, Message: ProbeSuccessMessage}
}
