package syncbus

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/hearsay-app/hearsay/internal/settings"
)

// Owner is the single context holding the persisted shared state. It
// answers get requests with the current state and applies set requests by
// persisting first, then broadcasting the accepted state. Members never
// touch the store.
type Owner struct {
	store  *settings.Store
	bus    Bus
	logger *log.Logger

	subs []Subscription
}

// NewOwner wires an owner over the given store and bus.
func NewOwner(store *settings.Store, bus Bus, logger *log.Logger) *Owner {
	return &Owner{store: store, bus: bus, logger: logger}
}

// Start registers the request handlers. The owner stays passive until a
// member asks for or changes the state.
func (o *Owner) Start() error {
	getSub, err := o.bus.Respond(SubjectGet, o.handleGet)
	if err != nil {
		return fmt.Errorf("register state get handler: %w", err)
	}
	o.subs = append(o.subs, getSub)

	setSub, err := o.bus.Respond(SubjectSet, o.handleSet)
	if err != nil {
		return fmt.Errorf("register state set handler: %w", err)
	}
	o.subs = append(o.subs, setSub)

	return nil
}

func (o *Owner) handleGet([]byte) ([]byte, error) {
	return json.Marshal(o.store.Load())
}

func (o *Owner) handleSet(data []byte) ([]byte, error) {
	var desired settings.Shared
	if err := json.Unmarshal(data, &desired); err != nil {
		return nil, fmt.Errorf("decode state set request: %w", err)
	}

	// Persist before broadcasting so a member that restarts mid-change
	// still reads the accepted state.
	accepted, err := o.store.Save(desired)
	if err != nil {
		return nil, fmt.Errorf("persist shared state: %w", err)
	}

	payload, err := json.Marshal(accepted)
	if err != nil {
		return nil, err
	}
	if err := o.bus.Publish(SubjectChanged, payload); err != nil {
		o.logger.Warn("state change broadcast failed", "err", err)
	}

	o.logger.Debug("shared state updated",
		"enabled", accepted.Enabled, "rate", accepted.Rate, "voice", accepted.SelectedVoiceID)
	return payload, nil
}

// Stop removes the request handlers.
func (o *Owner) Stop() {
	for _, s := range o.subs {
		_ = s.Unsubscribe()
	}
	o.subs = nil
}
