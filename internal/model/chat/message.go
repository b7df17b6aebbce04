package chat

// Role tags who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ParseRole maps a wire role onto a known Role. Unknown roles report false.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	default:
		return "", false
	}
}
