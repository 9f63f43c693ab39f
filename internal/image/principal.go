package image

// Name of the superuser principal.
const Root = "root"

// A user:group pair owning a path.
type Owner struct {
	User  string `json:"user"`
	Group string `json:"group"`
}

func (o Owner) String() string {
	return o.User + ":" + o.Group
}

// A declared network port.
type Port struct {
	Number   uint16 `json:"number"`
	Protocol string `json:"protocol"`
}

// Returns the port in OCI notation (e.g., "8080/tcp").
func (p Port) String() string {
	return portString(p.Number, p.Protocol)
}
