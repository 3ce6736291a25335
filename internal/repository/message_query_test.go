package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"group-chat/internal/domain"
	"group-chat/internal/pagination"
)

func TestBuildPageQuery_BackwardWithCursor(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildPageQuery(PageQuery{
		GroupID:  groupA,
		ViewerID: alice,
		Cursor:   &pagination.Cursor{CreatedAt: ts, ID: 42},
	}, 20)

	if !strings.Contains(query, "(m.created_date, m.id) < ($3, $4)") {
		t.Fatalf("expected keyset predicate, got %s", query)
	}
	if !strings.Contains(query, "ORDER BY m.created_date DESC, m.id DESC") {
		t.Fatalf("expected descending order, got %s", query)
	}
	if !strings.HasSuffix(query, "LIMIT $5") {
		t.Fatalf("expected limit placeholder last, got %s", query)
	}
	if len(args) != 5 || args[4] != 21 {
		t.Fatalf("expected limit+1 as last arg, got %v", args)
	}
}

func TestBuildPageQuery_ForwardTimestampOnly(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildPageQuery(PageQuery{
		Cursor:    &pagination.Cursor{CreatedAt: ts},
		Direction: pagination.Forward,
	}, 5)

	if !strings.Contains(query, "m.created_date > $1") || strings.Contains(query, "m.id) >") {
		t.Fatalf("expected strict timestamp predicate, got %s", query)
	}
	if !strings.Contains(query, "ASC") {
		t.Fatalf("expected ascending order, got %s", query)
	}
	if len(args) != 2 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildListQueries_CountSharesFilters(t *testing.T) {
	count, list, args := buildListQueries(ListQuery{SenderID: bob}, 20, 40)
	if !strings.Contains(count, "m.sender_uuid = $1") || !strings.Contains(list, "m.sender_uuid = $1") {
		t.Fatalf("filters differ between queries:\n%s\n%s", count, list)
	}
	if strings.Contains(count, "LIMIT") {
		t.Fatalf("count query must not paginate: %s", count)
	}
	if len(args) != 3 || args[1] != 20 || args[2] != 40 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildSearchQuery_EscapesWildcards(t *testing.T) {
	_, args := buildSearchQuery(SearchQuery{Text: `50%_off\`, Limit: 500, Offset: -3})
	if args[0] != `50\%\_off\\` {
		t.Fatalf("unexpected escaped text: %v", args[0])
	}
	if args[1] != pagination.MaxLimit || args[2] != 0 {
		t.Fatalf("expected clamped limit/offset, got %v", args[1:])
	}
}

func TestStoreErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"fk", &pgconn.PgError{Code: "23503"}, domain.ErrNotFound},
		{"check", &pgconn.PgError{Code: "23514"}, domain.ErrValidationFailed},
		{"bad uuid", &pgconn.PgError{Code: "22P02"}, domain.ErrValidationFailed},
		{"connection", errors.New("dial tcp: refused"), domain.ErrStoreUnavailable},
		{"passthrough", domain.ErrNotAuthorized, domain.ErrNotAuthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := storeErr("op", tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
