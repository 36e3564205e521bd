// Package http exposes the client core to a presentation layer over JSON
// and a WebSocket snapshot stream.
//
// The router exposes the following endpoints:
//   - GET /healthz: plain "ok".
//   - GET /api/state: the current state snapshot (see application.Snapshot).
//   - GET /api/stream: WebSocket. Every state change pushes
//     {"type":"snapshot","data":<snapshot>}; the first message is sent on connect.
//   - POST /api/session {"email","password"}: signs in. DELETE /api/session signs out.
//   - PUT /api/profile {"username","full_name","avatar_url"}: updates profile fields;
//     omitted fields are left unchanged.
//   - POST /api/events: creates an event from `eventRequest`. POST /api/events/sync
//     runs a sync tick. POST /api/events/{id}/join, DELETE /api/events/{id} and
//     POST /api/events/{id}/chat act on an event known to the current snapshot.
//   - POST /api/locations/refresh reloads locations. POST /api/locations/{id}/toggle
//     checks in or out of a location.
//   - POST /api/channels/direct {"member_id","name"} opens a direct channel.
//     PUT /api/channels/active {"id"} selects a channel. DELETE /api/channels/{id}
//     leaves a derived channel.
//   - PUT /api/surface {"surface"} switches the active surface.
//
// Mutating endpoints answer with the snapshot taken after the intent, so a
// client that does not hold the stream still sees queued notifications.
package http
