package books

type ListBooksQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"20" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Search *string `query:"search" json:"search,omitempty" validate:"omitempty,max=200"`
	Unread bool    `query:"unread" json:"unread,omitempty"`
}

type MarkReadPayload struct {
	Rank float64 `json:"rank" validate:"min=0"`
}
