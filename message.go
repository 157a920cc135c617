package wsclient

// Message is a whole application message delivered to the host via
// on_message, or handed to Send for transmission. Text messages carry
// UTF-8 bytes; per spec.md §3 the engine does not validate UTF-8 on
// receive (see DESIGN.md, Open Question 2).
type Message struct {
	Payload []byte
	IsText  bool
}

// TextMessage builds a Message carrying a text payload.
func TextMessage(s string) Message {
	return Message{Payload: []byte(s), IsText: true}
}

// BinaryMessage builds a Message carrying an arbitrary binary payload.
func BinaryMessage(b []byte) Message {
	return Message{Payload: b, IsText: false}
}
