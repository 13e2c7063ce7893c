// Package cli provides the interactive Hawa Sawa chat client.
//
// It wires configuration, the message store (remote gRPC or a local SQLite
// file), the assistant gateway and an interactive REPL. Typical flow: log in
// with a phone number, pick a peer with "open", then exchange messages.
//
// Key features:
//   - Login / Logout by phone number
//   - Directory listing and contact info with masked phones
//   - Text and image messages with delivery ticks
//   - Assistant conversation with text and image replies
//   - Developer console for the verifier account
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
