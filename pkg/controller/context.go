package controller

// ClientContext describes the connection a command arrived on.
type ClientContext struct {
	Transport  string
	RemoteAddr string
}

func NewClientContext(transport, remoteAddr string) *ClientContext {
	return &ClientContext{
		Transport:  transport,
		RemoteAddr: remoteAddr,
	}
}
