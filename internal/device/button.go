package device

import (
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Button locks and unlocks the local controls of an actuator with WHO=14
// frames. The bus does not report the lock state, so a button has none.
type Button struct {
	entity
}

func newButton(cfg Config, sender Sender, out *output) *Button {
	return &Button{entity: newEntity(cfg, sender, out)}
}

// HandleEvent is a no-op.
func (b *Button) HandleEvent(openwebnet.Message) {}

// AsyncUpdate is a no-op.
func (b *Button) AsyncUpdate() {}

// Command handles lock and unlock.
func (b *Button) Command(cmd Command) error {
	switch cmd.Action {
	case ActionLock:
		b.sender.Send(openwebnet.DisableCommands(b.cfg.FullWhere()))
	case ActionUnlock:
		b.sender.Send(openwebnet.EnableCommands(b.cfg.FullWhere()))
	default:
		return b.unsupported(cmd.Action)
	}
	return nil
}
