package pagination

import (
	"fmt"
	"strings"

	"group-chat/internal/domain"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Direction define el sentido de lectura respecto del cursor.
type Direction int

const (
	// Backward: más nuevos primero, estrictamente antes del cursor.
	Backward Direction = iota
	// Forward: más viejos primero, estrictamente después del cursor.
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "backward", "desc", "before":
		return Backward, nil
	case "forward", "asc", "after":
		return Forward, nil
	default:
		return Backward, fmt.Errorf("%w: unknown direction %q", domain.ErrValidationFailed, s)
	}
}

// ClampLimit aplica el default (0) y el rango [1, MaxLimit].
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultLimit
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Window recorta filas leídas con limit+1 y calcula hasMore y el próximo cursor.
// rows ya viene ordenado en la dirección pedida.
func Window[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor, bool) {
	if len(rows) <= limit {
		return rows, nil, false
	}
	items := rows[:limit]
	next := key(items[len(items)-1])
	return items, &next, true
}
