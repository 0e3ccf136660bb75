// Package events publishes deployment lifecycle events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// DefaultActivatedSubject is where DeploymentActivated events go unless
// configured otherwise.
const DefaultActivatedSubject = "sites.deployment.activated"

// DeploymentActivated is emitted after a finalize transaction commits.
type DeploymentActivated struct {
	SiteID               string    `json:"siteId"`
	SiteSlug             string    `json:"siteSlug"`
	OwnerProfileSlug     string    `json:"ownerProfileSlug"`
	DeploymentID         string    `json:"deploymentId"`
	DeploymentKey        string    `json:"deploymentKey"`
	ArchivedDeploymentID string    `json:"archivedDeploymentId,omitempty"`
	PublishRecordID      string    `json:"publishRecordId,omitempty"`
	URL                  string    `json:"url"`
	ActivatedAt          time.Time `json:"activatedAt"`
}

// publisher is the subset of nats.JetStreamContext used here.
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Bus sends events over a JetStream connection.
type Bus struct {
	conn    *nats.Conn
	js      publisher
	subject string
}

// Connect dials url and opens a JetStream context. The stream that captures
// subject is expected to exist already.
func Connect(url, subject string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "connect to NATS at %s", url)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, xerrors.Wrap(err, "open JetStream context")
	}
	return newBus(nc, js, subject), nil
}

func newBus(nc *nats.Conn, js publisher, subject string) *Bus {
	if subject == "" {
		subject = DefaultActivatedSubject
	}
	return &Bus{conn: nc, js: js, subject: subject}
}

// Close drains the connection, falling back to a hard close.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// NotifyActivated publishes ev as JSON, deduplicated by deployment id and
// activation time.
func (b *Bus) NotifyActivated(ctx context.Context, ev DeploymentActivated) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return xerrors.Wrap(err, "encode deployment event")
	}
	msgID := ev.DeploymentID + "@" + ev.ActivatedAt.UTC().Format(time.RFC3339Nano)
	if _, err := b.js.Publish(b.subject, data, nats.Context(ctx), nats.MsgId(msgID)); err != nil {
		return xerrors.Wrapf(err, "publish %s", b.subject)
	}
	return nil
}
