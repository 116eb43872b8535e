// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

/*
Package api provides the HTTP API of the CaseSync server.

The router is built on chi with production middleware from the chi
ecosystem: request ids carried into the logging context, panic recovery,
go-chi/cors, and go-chi/httprate rate limiting keyed by client IP.

# Endpoints

Public:

	GET  /healthz                               database reachability
	GET  /metrics                               Prometheus exposition

Operator (HS256 bearer token, see JWTManager):

	POST /api/v1/companies/{companyID}/sync          manual pass (?full=true for a full pass)
	GET  /api/v1/companies/{companyID}/connection    connection check
	GET  /api/v1/companies/{companyID}/crm-config    tenant CRM settings (secret masked)
	PUT  /api/v1/companies/{companyID}/crm-config    store tenant CRM settings
	GET  /api/v1/companies/{companyID}/cases         list cases
	POST /api/v1/companies/{companyID}/cases         create a case
	GET  /api/v1/cases/{caseID}                      case with notes
	PATCH /api/v1/cases/{caseID}                     edit a case (marks it pending)
	POST /api/v1/cases/{caseID}/push                 push one case now
	POST /api/v1/cases/{caseID}/refresh              pull one case now
	POST /api/v1/cases/{caseID}/notes                add a note
	POST /api/v1/notes/{noteID}/push                 post a note as a CRM comment
	GET  /api/v1/lookups/{kind}                      lookup values

Every response uses the models.APIResponse envelope.
*/
package api
