// Package common contains shared constants and sentinel errors used across
// hawachat components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// AssistantID is the reserved participant id of the automated responder.
const AssistantID = "ai"

// AssistantPhone is the identity credential sentinel stored on the
// assistant's user record in place of a real phone number.
const AssistantPhone = "AI"
