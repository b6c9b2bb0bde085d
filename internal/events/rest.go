package events

import "time"

// RESTCallStart is emitted before the resolver issues an outbound REST call.
type RESTCallStart struct {
	Service string
	Method  string
	URL     string
}

// RESTCallFinish is emitted after an outbound REST call completes.
type RESTCallFinish struct {
	Service  string
	Method   string
	URL      string
	Status   int
	Err      error
	Duration time.Duration
}
