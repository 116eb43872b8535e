// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/casesync/internal/models"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

func formatProbe(c models.Company, ok bool, message string) string {
	status := "OK"
	if !ok {
		status = "FAILED"
	}
	return fmt.Sprintf("%s (%d): %s - %s", c.Name, c.ID, status, message)
}

func formatPass(c models.Company, res *syncpkg.PassResult, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d): ", c.Name, c.ID)
	if res == nil {
		fmt.Fprintf(&b, "pass failed: %v", err)
		return b.String()
	}

	b.WriteString(res.Message())
	fmt.Fprintf(&b, "; pulled %d, reconciled %d, skipped %d", res.Pulled, res.Reconciled, res.Skipped)
	if res.Claimed > 0 {
		fmt.Fprintf(&b, ", %d claimed elsewhere", res.Claimed)
	}
	if res.PullError != "" {
		fmt.Fprintf(&b, "; pull failed: %s", res.PullError)
	}
	fmt.Fprintf(&b, " (%s)", res.Duration.Round(time.Millisecond))
	if res.Interrupted {
		b.WriteString(" [interrupted]")
	}
	if err != nil && !res.Interrupted {
		fmt.Fprintf(&b, "; error: %v", err)
	}
	return b.String()
}
