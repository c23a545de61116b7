package protocol

import "fmt"

// NewConnection is the length-undelimited JSON object a client sends over
// the daemon's main socket and then half-closes. The daemon never replies
// on this connection — replies go to ReplyAddress instead.
type NewConnection struct {
	MinVersion    *int   `json:"min_version,omitempty"`
	ClientVersion string `json:"client_version"`
	ReplyAddress  string `json:"reply_address"`
	ClientName    string `json:"client_name"`
}

// ValidateHandshake checks that a reply address is present and compares the
// client's requested minimum daemon version, if any, against daemonVersion
// as plain integers. A missing MinVersion always passes.
func ValidateHandshake(req *NewConnection, daemonVersion int) error {
	if req.ReplyAddress == "" {
		return fmt.Errorf("handshake missing reply_address")
	}
	if req.MinVersion != nil && *req.MinVersion > daemonVersion {
		return fmt.Errorf("client requires daemon version >= %d, daemon is v%d", *req.MinVersion, daemonVersion)
	}
	return nil
}
