package bench

// Kind selects what a pass measures.
type Kind int

const (
	KindSendMessages Kind = iota
	KindPollMessages
	KindSendAndPollMessages
)

func (k Kind) String() string {
	switch k {
	case KindSendMessages:
		return "SendMessages"
	case KindPollMessages:
		return "PollMessages"
	case KindSendAndPollMessages:
		return "SendAndPollMessages"
	}
	return "Unknown"
}

func (k Kind) sends() bool { return k != KindPollMessages }

func (k Kind) polls() bool { return k != KindSendMessages }

// Kinds returns the enabled kinds in execution order. Polling follows sending
// so it reads what the send pass wrote.
func (c *Config) Kinds() []Kind {
	var out []Kind
	if c.TestSendMessages {
		out = append(out, KindSendMessages)
	}
	if c.TestPollMessages {
		out = append(out, KindPollMessages)
	}
	if c.TestSendAndPollMessages {
		out = append(out, KindSendAndPollMessages)
	}
	return out
}
