package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"group-chat/internal/domain"
)

// Cursor marca el límite exclusivo de la siguiente página: el timestamp del
// último elemento devuelto y su id para desempatar timestamps repetidos.
// ID == 0 significa un cursor solo-timestamp (formato heredado, sin desempate).
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

const cursorSep = "|"

// naiveISO cubre timestamps ISO-8601 sin zona (se asumen UTC).
const naiveISO = "2006-01-02T15:04:05.999999999"

// Encode produce un token opaco y seguro para URLs.
func Encode(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSep + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode interpreta un token de Encode o, como compatibilidad, un timestamp ISO-8601 suelto.
func Decode(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, fmt.Errorf("%w: empty cursor", domain.ErrInvalidCursor)
	}
	if raw, err := base64.RawURLEncoding.DecodeString(token); err == nil {
		if c, ok := parseEncoded(string(raw)); ok {
			return c, nil
		}
	}
	ts, err := parseTimestamp(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %q", domain.ErrInvalidCursor, token)
	}
	return Cursor{CreatedAt: ts}, nil
}

func parseEncoded(raw string) (Cursor, bool) {
	tsPart, idPart, found := strings.Cut(raw, cursorSep)
	if !found {
		return Cursor{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return Cursor{}, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 0 {
		return Cursor{}, false
	}
	return Cursor{CreatedAt: ts.UTC(), ID: id}, true
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.ParseInLocation(naiveISO, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// Less ordena por (CreatedAt, ID).
func (c Cursor) Less(other Cursor) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.ID < other.ID
	}
	return c.CreatedAt.Before(other.CreatedAt)
}

// Admits indica si la clave k queda estrictamente del otro lado del cursor en la dirección dada.
func (c Cursor) Admits(k Cursor, dir Direction) bool {
	if c.ID == 0 {
		if dir == Forward {
			return k.CreatedAt.After(c.CreatedAt)
		}
		return k.CreatedAt.Before(c.CreatedAt)
	}
	if dir == Forward {
		return c.Less(k)
	}
	return k.Less(c)
}
