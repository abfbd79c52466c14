package join

import "encoding/gob"

// internal/transport/tcp encodes every message payload as a gob-encoded
// any, so every concrete payload type this package sends across
// SendAsync must be registered once, per encoding/gob's requirement for
// interface values.
func init() {
	gob.Register(depositMsg{})
	gob.Register(planMsg{})
	gob.Register(receiveJoinDataMsg{})
	gob.Register(errorReport{})
	gob.Register(broadcastMsg{})
}
