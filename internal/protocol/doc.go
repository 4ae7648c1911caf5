// Package protocol defines the JSON messages exchanged over the client
// channel. Every frame is one JSON object with a "type" discriminator and
// camelCase fields. Terminal bytes travel as JSON strings.
package protocol
