// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package supervisor runs the daemon's long-lived services under a suture v4
tree:

	RootSupervisor ("weekline")
	├── DataSupervisor ("data-layer")
	│   └── cache compactor
	├── MessagingSupervisor ("messaging-layer")
	│   ├── refresh job host
	│   └── broadcast listener
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashing listener is restarted without touching scheduled refresh jobs or
the admin API. Supervisor events are logged through sutureslog into the
zerolog-backed slog handler.

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	tree.AddMessagingService(services.NewStartStopService("job-host", sched))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor
