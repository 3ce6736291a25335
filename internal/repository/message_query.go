package repository

import (
	"strconv"
	"strings"

	"group-chat/internal/pagination"
)

const messageColumns = `
		m.id, m.group_uuid::text, m.sender_uuid::text, COALESCE(u.name, ''),
		m.content, m.file, m.created_date, m.updated_at, m.is_deleted
`

const selectMessage = `SELECT` + messageColumns + `FROM messages m LEFT JOIN users u ON u.uuid = m.sender_uuid`

// returningSelect completa un CTE "m" (INSERT/UPDATE ... RETURNING) con el nombre del autor.
const returningSelect = `SELECT` + messageColumns + `FROM m LEFT JOIN users u ON u.uuid = m.sender_uuid`

// queryBuilder acumula condiciones y argumentos posicionales ($1, $2, ...).
type queryBuilder struct {
	conds []string
	args  []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *queryBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *queryBuilder) whereClause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (b *queryBuilder) filters(groupID, senderID, viewerID string) {
	b.where("m.is_deleted = false")
	if groupID != "" {
		b.where("m.group_uuid = " + b.arg(groupID))
	}
	if senderID != "" {
		b.where("m.sender_uuid = " + b.arg(senderID))
	}
	if viewerID != "" {
		b.where("m.group_uuid IN (SELECT group_uuid FROM group_participants WHERE user_uuid = " + b.arg(viewerID) + ")")
	}
}

// buildPageQuery arma la lectura keyset sobre (created_date, id) pidiendo limit+1 filas.
func buildPageQuery(q PageQuery, limit int) (string, []any) {
	var b queryBuilder
	b.filters(q.GroupID, q.SenderID, q.ViewerID)

	op, order := "<", "DESC"
	if q.Direction == pagination.Forward {
		op, order = ">", "ASC"
	}
	if c := q.Cursor; c != nil {
		if c.ID == 0 {
			b.where("m.created_date " + op + " " + b.arg(c.CreatedAt))
		} else {
			b.where("(m.created_date, m.id) " + op + " (" + b.arg(c.CreatedAt) + ", " + b.arg(c.ID) + ")")
		}
	}

	query := selectMessage + b.whereClause() +
		" ORDER BY m.created_date " + order + ", m.id " + order +
		" LIMIT " + b.arg(limit+1)
	return query, b.args
}

// buildListQueries devuelve el conteo y el listado por offset. Los dos últimos
// argumentos (limit, offset) solo los usa el listado.
func buildListQueries(q ListQuery, limit, offset int) (string, string, []any) {
	var b queryBuilder
	b.filters(q.GroupID, q.SenderID, q.ViewerID)
	where := b.whereClause()

	countQuery := `SELECT count(*) FROM messages m` + where
	listQuery := selectMessage + where +
		" ORDER BY m.created_date DESC, m.id DESC" +
		" LIMIT " + b.arg(limit) + " OFFSET " + b.arg(offset)
	return countQuery, listQuery, b.args
}

func buildSearchQuery(q SearchQuery) (string, []any) {
	var b queryBuilder
	b.filters("", "", q.ViewerID)
	b.where(`m.content ILIKE '%' || ` + b.arg(escapeLike(q.Text)) + ` || '%' ESCAPE '\'`)

	query := selectMessage + b.whereClause() +
		" ORDER BY m.created_date DESC, m.id DESC" +
		" LIMIT " + b.arg(pagination.ClampLimit(q.Limit)) +
		" OFFSET " + b.arg(max(q.Offset, 0))
	return query, b.args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
