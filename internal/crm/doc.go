// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

/*
Package crm is the Creatio CRM client used by the sync orchestrator.

# Components

  - TokenManager: OAuth2 client-credentials token acquisition and caching,
    one instance per tenant session. Tokens are reused until five minutes
    before expiry and dropped on any 401/403 from a data call.
  - Executor: the single request path for all data calls. An
    AddressingStyle (OData, DataService, ServiceModel) selects the URL
    layout; every call passes a per-tenant rate limiter and circuit breaker
    and carries the bearer token and Creatio session headers.
  - CaseAPI: Case create/update/read via DataService commands, delta
    listing and comments via OData.
  - Resolver: lookup display names to remote ids (prefix or exact match,
    optional LookupCache).
  - Translator: local case to outbound field map and remote record to
    local field updates.
  - Probe: operator-facing connection check that never returns an error.

# Errors

Failures are reported as *ConfigurationError, *AuthenticationError or
*RemoteRequestError. None of them are retried inside this package.
*/
package crm
