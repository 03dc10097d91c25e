// Package gate toggles named demand flags persisted in the store. Downstream
// workers request a gate when they run out of work; the gated stage drains its
// quota while the gate is enabled and disables it again when done.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"aperture/internal/logging"
	"aperture/internal/services"
	"aperture/internal/store"
)

// Gate values as persisted. Anything else in the store is corruption and
// fatal on read.
const (
	Enabled  = "enabled"
	Disabled = "disabled"
)

// Decryption is the gate consumed by the decrypt stage and requested by
// downstream workers that drained their queues.
const Decryption = "decryption"

// Controller reads and writes gate flags.
type Controller struct {
	store  *store.Store
	logger *slog.Logger
}

func NewController(st *store.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{store: st, logger: logger.With(logging.String(logging.FieldComponent, "gate"))}
}

// Request enables the gate. Requesting an already enabled gate is a no-op,
// so any number of starved workers can ask concurrently.
func (c *Controller) Request(ctx context.Context, name string) error {
	if err := c.store.UpsertGateValue(ctx, name, Enabled); err != nil {
		return err
	}
	c.logger.Info("gate requested", logging.String("gate", name))
	return nil
}

// Check reports whether the gate is enabled. A gate that has never been
// written initializes to enabled on first read, so a fresh deployment starts
// draining immediately. A stored value other than enabled/disabled is fatal.
func (c *Controller) Check(ctx context.Context, name string) (bool, error) {
	value, err := c.store.GateValue(ctx, name)
	if err != nil {
		return false, err
	}
	switch value {
	case "":
		if err := c.store.UpsertGateValue(ctx, name, Enabled); err != nil {
			return false, err
		}
		c.logger.Info("gate initialized", logging.String("gate", name))
		return true, nil
	case Enabled:
		return true, nil
	case Disabled:
		return false, nil
	default:
		return false, services.Wrap(services.ErrGateCorrupt, "", "check gate",
			fmt.Sprintf("%s holds %q", name, value), nil)
	}
}

// Complete disables the gate after the gated stage finished its drain.
func (c *Controller) Complete(ctx context.Context, name string) error {
	if err := c.store.UpsertGateValue(ctx, name, Disabled); err != nil {
		return err
	}
	c.logger.Info("gate completed", logging.String("gate", name))
	return nil
}
