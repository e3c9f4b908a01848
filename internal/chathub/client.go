package chathub

import "campusfix/backend/internal/models"

// Client is one live viewer of a complaint thread. It abstracts the
// underlying connection so the hub can manage every client uniformly.
type Client interface {
	// GetUserID returns the profile id behind the connection.
	GetUserID() string
	// GetComplaintID returns the complaint whose thread the client watches.
	GetComplaintID() string

	// GetSendChannel returns the channel the hub pushes events into.
	GetSendChannel() chan<- models.MessageEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close stops the write pump. It is safe to call more than once.
	Close()
}
