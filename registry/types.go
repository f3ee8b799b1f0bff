// Package registry owns the user and message collections and mediates
// every read and write against them. It is the only component that
// invokes the bot engine.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TimeFormat is the wire format for message timestamps. Microsecond
// precision, lexicographic order matches chronological order.
const TimeFormat = "20060102150405.000000"

// Origin identifies which side of the conversation produced a message.
type Origin string

// Message origins.
const (
	OriginClient Origin = "client"
	OriginServer Origin = "server"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginClient || o == OriginServer
}

// letter returns the single-character prefix used in message IDs.
func (o Origin) letter() string {
	if o == OriginServer {
		return "s"
	}
	return "c"
}

// User is a registered conversation partner.
type User struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// Message is a single utterance in a user's conversation.
type Message struct {
	ID      string `json:"id"`
	Origin  Origin `json:"origin"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

// NewMessageID derives a message ID from its origin and timestamp: the
// origin letter followed by the hex sha256 of the formatted time. Two
// messages with the same origin in the same microsecond share an ID, so
// a lookup by that ID cannot tell them apart.
func NewMessageID(origin Origin, timestamp string) string {
	sum := sha256.Sum256([]byte(timestamp))
	return origin.letter() + hex.EncodeToString(sum[:])
}

// NewMessage builds a message stamped at now with a derived ID.
func NewMessage(origin Origin, content string, now time.Time) *Message {
	ts := now.UTC().Format(TimeFormat)
	return &Message{
		ID:      NewMessageID(origin, ts),
		Origin:  origin,
		Content: content,
		Time:    ts,
	}
}
