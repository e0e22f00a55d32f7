package internal

// Event is the record published downstream after an ingestion write lands.
type Event struct {
	Provider     string `json:"provider"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Repository   string `json:"repository"`
	Key          string `json:"key"`
	RequestID    string `json:"request_id,omitempty"`

	// RawPayload, when set, is forwarded verbatim instead of the
	// marshalled event.
	RawPayload []byte `json:"-"`
}
