package agent

// Role is an agent's part in a transmission.
type Role string

const (
	// RoleSender encodes frames into its state.
	RoleSender Role = "sender"

	// RoleReceiver decodes frames from a state handed over by a sender.
	RoleReceiver Role = "receiver"

	// RoleObserver only measures; it never encodes or decodes.
	RoleObserver Role = "observer"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if this is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleSender, RoleReceiver, RoleObserver:
		return true
	default:
		return false
	}
}

// CanEncode reports whether the role writes messages into its state.
func (r Role) CanEncode() bool {
	return r == RoleSender
}

// CanDecode reports whether the role reads messages out of its state.
func (r Role) CanDecode() bool {
	return r == RoleSender || r == RoleReceiver
}

// Description returns a human-readable description of the role.
func (r Role) Description() string {
	switch r {
	case RoleSender:
		return "Encodes frames and drives coupled evolution"
	case RoleReceiver:
		return "Decodes frames and reassembles messages"
	case RoleObserver:
		return "Measures resonance and entropy only"
	default:
		return "Unknown role"
	}
}
