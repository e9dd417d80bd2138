package kernel

import "fmt"

// Message is the unit of inter-process communication. The kernel delivers
// a deep copy, so the sender may reuse its payload after SendMessage.
type Message struct {
	SenderPid int
	TargetPid int
	Type      int
	Payload   []byte
}

func NewMessage(target, typ int, payload []byte) Message {
	return Message{
		TargetPid: target,
		Type:      typ,
		Payload:   append([]byte(nil), payload...),
	}
}

func (m Message) Clone() Message {
	m.Payload = append([]byte(nil), m.Payload...)
	return m
}

func (m Message) String() string {
	return fmt.Sprintf("from=%d to=%d type=%d payload=%q", m.SenderPid, m.TargetPid, m.Type, m.Payload)
}
