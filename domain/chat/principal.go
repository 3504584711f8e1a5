package chat

// Principal is the identity attached to a request or a connection.
// The zero value is Anonymous.
type Principal string

const Anonymous Principal = ""

func (p Principal) Authenticated() bool {
	return p != Anonymous
}

func (p Principal) String() string {
	if p == Anonymous {
		return "anonymous"
	}
	return string(p)
}
