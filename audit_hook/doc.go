// Package audithook records an audit trail of queue and quota events.
//
// Every lifecycle hook becomes a structured [AuditEvent] handed to a
// [Recorder]. Severity follows the event: info for normal progress, warning
// for retries, expired leases and quota denials, critical for dead letters.
// [SlogRecorder] writes events to a logger; other backends plug in through
// [RecorderFunc].
//
// By default only the actions in [DefaultActions] are recorded, since
// per-job start and completion events are high volume:
//
//	audithook.New(audithook.NewSlogRecorder(logger),
//	    audithook.WithActions(audithook.AllActions()...),
//	)
package audithook
