package pagination

// Meta describe una página de la paginación por offset de GET /messages.
type Meta struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
	NextPage   *int `json:"next_page"`
	PrevPage   *int `json:"prev_page"`
}

// NormalizeOffset corrige page/per_page fuera de rango a 1 y DefaultLimit.
func NormalizeOffset(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxLimit {
		perPage = DefaultLimit
	}
	return page, perPage
}

func Offset(page, perPage int) int {
	return (page - 1) * perPage
}

func NewMeta(page, perPage, total int) Meta {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	m := Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
	if m.HasNext {
		next := page + 1
		m.NextPage = &next
	}
	if m.HasPrev {
		prev := page - 1
		m.PrevPage = &prev
	}
	return m
}
