// Package client is the remote realtime store: a store.Store backed by the
// StoreService gRPC endpoint.
//
// GRPCClient manages the connection, injects the access token obtained by
// Login into every call and stream, and maps gRPC status codes back onto
// the shared sentinel errors:
//
//   - Unauthenticated, PermissionDenied: common.ErrorUnauthorized
//   - Unavailable, DeadlineExceeded: ErrUnavailable
//   - NotFound: common.ErrorNotFound
//   - InvalidArgument: common.ErrorValidation
//
// Subscriptions run on their own goroutines and deliver snapshots in
// order. A subscription's first snapshot is received before Subscribe*
// returns, so authentication and connectivity failures surface there.
package client
