package netlink

// Receiver reads the next batch of messages from a socket into buf.
type Receiver interface {
	Receive(buf []byte) ([]Message, error)
}

// NewDumpRequest builds a full-table GET request. The fixed structure is
// zeroed except for its leading family byte, which every rtnetlink request
// header starts with.
func NewDumpRequest(msgType uint16, family uint8, fixedLen int, seq uint32) []byte {
	b := NewBuilder(msgType, NLM_F_REQUEST|NLM_F_DUMP)
	off := b.Reserve(fixedLen)
	b.Span(off, 1)[0] = family
	msg := b.Bytes()
	SetSeq(msg, seq)
	return msg
}

// ConsumeDump reads replies to the dump request seq until the kernel closes
// it with NLMSG_DONE. Every other message read meanwhile, including
// unrelated multicast notifications, is handed to fn as well.
func ConsumeDump(r Receiver, seq uint32, buf []byte, fn func(*Message)) error {
	for {
		msgs, err := r.Receive(buf)
		if err != nil {
			return err
		}
		for i := range msgs {
			m := &msgs[i]
			if m.Header.Seq == seq {
				switch m.Header.Type {
				case NLMSG_DONE:
					return nil
				case NLMSG_ERROR:
					errno, err := m.Errno()
					if err != nil {
						return err
					}
					if errno != 0 {
						return &KernelError{Seq: seq, Errno: errno}
					}
					continue
				}
			}
			fn(m)
		}
	}
}
