// Package chat implements the connection registry and message routing for
// the line chat server.
//
// A Router owns the ordered roster of Sessions. Every roster read or write
// (add, remove, broadcast, private send, user listing) runs under a single
// mutex, and lines are written to recipients while that mutex is held. A
// recipient whose write blocks therefore stalls routing for all clients;
// bound it with transport.WithWriteTimeout, passed through WithTCPOptions,
// when that matters.
//
// Each Session runs its read loop on its own goroutine and calls back into
// the Router to route text. Write failures tear down only the failing
// Session.
package chat
