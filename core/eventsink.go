package core

import (
	"context"

	"pkt.systems/mounttab/schema"
)

// Publisher receives envelopes for every applied mutation. Publish must not block.
type Publisher interface {
	Publish(env schema.Envelope)
}

// Subscriber hands out envelope streams. The stream never carries envelopes
// whose source is self.
type Subscriber interface {
	Subscribe(self schema.Source) (<-chan schema.Envelope, func())
}

// Replica owns one external representation of the workspace and keeps it in
// step with the canonical workspace until ctx is cancelled.
type Replica interface {
	Source() schema.Source
	Run(ctx context.Context) error
}
