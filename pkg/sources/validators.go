package sources

type ListSourcesQuery struct {
	Subscribed *bool `query:"subscribed" json:"subscribed,omitempty"`
}

type UpdateSourcePayload struct {
	Subscribed *bool `json:"subscribed,omitempty"`
}
