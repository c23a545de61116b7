package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/mcfleet/mcfleet/internal/protocol"
)

func marshalEnvelope(env protocol.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

func unmarshalCommand(data []byte) (protocol.Command, error) {
	var cmd protocol.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return protocol.Command{}, fmt.Errorf("unmarshal command: %w", err)
	}
	return cmd, nil
}
