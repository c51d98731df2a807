// Package realtime pushes issuance and door-scan events to live dashboards.
package realtime

import (
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"
)

const (
	EventIssued   = "ticket_issued"
	EventRedeemed = "ticket_redeemed"
	EventRejected = "ticket_rejected"
)

// Event is one message on the scan feed. Buyer emails never leave the
// server through this channel.
type Event struct {
	Kind     string    `json:"type"`
	TicketID string    `json:"ticket_id,omitempty"`
	Type     string    `json:"ticket_type,omitempty"`
	Name     string    `json:"name,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers feed events. Implementations must not block callers on
// network I/O.
type Publisher interface {
	Publish(ev Event)
}

// Nop drops every event. Used when PubNub is not configured.
type Nop struct{}

func (Nop) Publish(Event) {}

// publishAPI is the slice of the PubNub client the publisher needs.
type publishAPI interface {
	publish(channel string, message any) error
}

type pubnubAPI struct {
	pn *pubnub.PubNub
}

func (a pubnubAPI) publish(channel string, message any) error {
	_, _, err := a.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

type PubNubPublisher struct {
	api     publishAPI
	channel string
	logger  *slog.Logger
}

func NewPubNubPublisher(publishKey, subscribeKey, userID, channel string, logger *slog.Logger) *PubNubPublisher {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey

	return &PubNubPublisher{
		api:     pubnubAPI{pn: pubnub.NewPubNub(cfg)},
		channel: channel,
		logger:  logger,
	}
}

// Publish sends in a goroutine and only logs failures.
func (p *PubNubPublisher) Publish(ev Event) {
	go func() {
		if err := p.api.publish(p.channel, ev); err != nil {
			p.logger.Warn("scan feed publish failed", "channel", p.channel, "kind", ev.Kind, "error", err)
		}
	}()
}

// New returns a PubNub publisher when keys are configured and Nop otherwise.
func New(publishKey, subscribeKey, userID, channel string, logger *slog.Logger) Publisher {
	if publishKey == "" || subscribeKey == "" {
		return Nop{}
	}
	return NewPubNubPublisher(publishKey, subscribeKey, userID, channel, logger)
}
