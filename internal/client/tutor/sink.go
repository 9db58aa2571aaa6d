package tutor

// DocumentSink receives note content produced by the assistant. Append adds
// the content at the end of the open document. Session.Reset and Session.Close
// wait for an Append in progress, so Append must not block on the goroutine
// that calls them.
type DocumentSink interface {
	Append(content string)
}

// DocumentSinkFunc adapts a function to DocumentSink.
type DocumentSinkFunc func(content string)

func (f DocumentSinkFunc) Append(content string) {
	f(content)
}
