// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

/*
Package supervisor runs the long-lived parts of the CaseSync server under a
suture v4 supervisor tree.

	RootSupervisor ("casesync")
	├── SyncSupervisor ("sync-layer")
	│   └── SchedulerService (scheduled incremental passes, if an interval is set)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed scheduler is restarted with backoff without interrupting the HTTP
API, and the API keeps accepting manual sync requests while the scheduler
is backing off.

Supervisor events are logged through sutureslog into the zerolog logger
(see logging.NewSlogLogger).
*/
package supervisor
