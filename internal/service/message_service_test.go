package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"group-chat/internal/domain"
	"group-chat/internal/pagination"
	"group-chat/internal/repository"
)

const (
	testGroup = "11111111-1111-1111-1111-111111111111"
	otherGrp  = "22222222-2222-2222-2222-222222222222"
	userAlice = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	userBob   = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	userEve   = "eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee"
)

type recordedEvent struct {
	typ domain.EventType
	msg domain.Message
}

type mockNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, t domain.EventType, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, recordedEvent{typ: t, msg: msg})
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

func newTestMessageService(t *testing.T) (*MessageService, *mockNotifier) {
	t.Helper()
	ctx := context.Background()
	users := repository.NewMemoryUserRepository()
	for id, name := range map[string]string{userAlice: "alice", userBob: "bob", userEve: "eve"} {
		if _, err := users.Create(ctx, domain.User{ID: id, Name: name}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	members := repository.NewMemoryMembershipRepository()
	for _, m := range []struct{ group, user string }{{testGroup, userAlice}, {testGroup, userBob}, {otherGrp, userEve}} {
		if _, err := members.Add(ctx, m.group, m.user); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	notifier := &mockNotifier{}
	messages := repository.NewMemoryMessageRepository(members, users)
	return NewMessageService(nil, messages, members, notifier, nil, nil), notifier
}

func TestMessageServicePost_PersistsAndAnnounces(t *testing.T) {
	svc, notifier := newTestMessageService(t)

	msg, err := svc.Post(context.Background(), userAlice, PostMessageInput{GroupID: " " + testGroup + " ", Content: "hello"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.ID <= 0 || msg.SenderName != "alice" || msg.GroupID != testGroup {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(notifier.events) != 1 || notifier.events[0].typ != domain.EventNewMessage || notifier.events[0].msg.ID != msg.ID {
		t.Fatalf("expected one new_message event, got %+v", notifier.events)
	}
}

func TestMessageServicePost_Rejections(t *testing.T) {
	svc, notifier := newTestMessageService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		sender string
		in     PostMessageInput
		want   error
	}{
		{"empty content", userAlice, PostMessageInput{GroupID: testGroup}, domain.ErrValidationFailed},
		{"bad group", userAlice, PostMessageInput{GroupID: "nope", Content: "x"}, domain.ErrValidationFailed},
		{"content too long", userAlice, PostMessageInput{GroupID: testGroup, Content: strings.Repeat("a", 10001)}, domain.ErrValidationFailed},
		{"not a member", userEve, PostMessageInput{GroupID: testGroup, Content: "x"}, domain.ErrNotAuthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Post(ctx, tc.sender, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no events for rejected posts, got %d", len(notifier.events))
	}
}

func TestMessageServicePost_RateLimited(t *testing.T) {
	svc, _ := newTestMessageService(t)
	svc.limiter = denyLimiter{}

	_, err := svc.Post(context.Background(), userAlice, PostMessageInput{GroupID: testGroup, Content: "x"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestMessageServicePost_PublishFailureKeepsWrite(t *testing.T) {
	svc, notifier := newTestMessageService(t)
	notifier.err = domain.ErrBrokerUnavailable
	ctx := context.Background()

	msg, err := svc.Post(ctx, userAlice, PostMessageInput{GroupID: testGroup, Content: "persisted"})
	if err != nil {
		t.Fatalf("expected write to succeed despite broker failure, got %v", err)
	}
	got, err := svc.Get(ctx, userBob, msg.ID)
	if err != nil || got.Content != "persisted" {
		t.Fatalf("expected message readable, got %+v err=%v", got, err)
	}
}

func TestMessageServiceUpdateAndDelete(t *testing.T) {
	svc, notifier := newTestMessageService(t)
	ctx := context.Background()

	msg, err := svc.Post(ctx, userAlice, PostMessageInput{GroupID: testGroup, Content: "v1"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	content := "v2"
	if _, err := svc.Update(ctx, userBob, msg.ID, UpdateMessageInput{Content: &content}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-author, got %v", err)
	}
	if _, err := svc.Update(ctx, userAlice, msg.ID, UpdateMessageInput{}); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for empty update, got %v", err)
	}
	empty := ""
	if _, err := svc.Update(ctx, userAlice, msg.ID, UpdateMessageInput{Content: &empty}); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for blank content, got %v", err)
	}

	updated, err := svc.Update(ctx, userAlice, msg.ID, UpdateMessageInput{Content: &content})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "v2" || !updated.CreatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if _, err := svc.Delete(ctx, userAlice, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Delete(ctx, userAlice, msg.ID); !errors.Is(err, domain.ErrAlreadyDeleted) {
		t.Fatalf("expected ErrAlreadyDeleted, got %v", err)
	}
	if _, err := svc.Get(ctx, userAlice, msg.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted message to read as not found, got %v", err)
	}

	want := []domain.EventType{domain.EventNewMessage, domain.EventUpdatedMessage, domain.EventDeletedMessage}
	if len(notifier.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(notifier.events))
	}
	for i, typ := range want {
		if notifier.events[i].typ != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, notifier.events[i].typ)
		}
	}
	if !notifier.events[2].msg.IsDeleted() {
		t.Fatalf("expected deleted_message to carry the deleted state")
	}
}

func TestMessageServiceGet_RequiresMembership(t *testing.T) {
	svc, _ := newTestMessageService(t)
	ctx := context.Background()

	msg, err := svc.Post(ctx, userAlice, PostMessageInput{GroupID: testGroup, Content: "secret"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := svc.Get(ctx, userEve, msg.ID); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.Get(ctx, userAlice, 9999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageServicePage_WalksHistory(t *testing.T) {
	svc, _ := newTestMessageService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := svc.Post(ctx, userAlice, PostMessageInput{GroupID: testGroup, Content: "m"}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	first, err := svc.Page(ctx, userBob, PageRequest{GroupID: testGroup, Limit: 3})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(first.Items) != 3 || !first.HasMore || first.NextCursor == nil {
		t.Fatalf("unexpected first page: %+v", first)
	}
	second, err := svc.Page(ctx, userBob, PageRequest{GroupID: testGroup, Limit: 3, Cursor: pagination.Encode(*first.NextCursor)})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(second.Items) != 2 || second.HasMore {
		t.Fatalf("unexpected second page: %+v", second)
	}
	if second.Items[0].ID >= first.Items[2].ID {
		t.Fatalf("expected older messages on the second backward page")
	}
}

func TestMessageServicePage_Rejections(t *testing.T) {
	svc, _ := newTestMessageService(t)
	ctx := context.Background()

	if _, err := svc.Page(ctx, userAlice, PageRequest{GroupID: testGroup, Cursor: "%%%"}); !errors.Is(err, domain.ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
	if _, err := svc.Page(ctx, userAlice, PageRequest{GroupID: testGroup, Direction: "sideways"}); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for bad direction, got %v", err)
	}
	if _, err := svc.Page(ctx, userEve, PageRequest{GroupID: testGroup}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestMessageServiceListAndSearch(t *testing.T) {
	svc, _ := newTestMessageService(t)
	ctx := context.Background()
	for _, c := range []string{"hello world", "bye", "HELLO again"} {
		if _, err := svc.Post(ctx, userAlice, PostMessageInput{GroupID: testGroup, Content: c}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	msgs, meta, err := svc.List(ctx, userBob, ListRequest{GroupID: testGroup, Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || meta.Total != 3 || meta.TotalPages != 2 {
		t.Fatalf("unexpected list result: %d items meta=%+v", len(msgs), meta)
	}
	if _, _, err := svc.List(ctx, userEve, ListRequest{GroupID: testGroup}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	found, err := svc.Search(ctx, userBob, "hello", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	hidden, err := svc.Search(ctx, userEve, "hello", 10, 0)
	if err != nil {
		t.Fatalf("search as outsider: %v", err)
	}
	if len(hidden) != 0 {
		t.Fatalf("expected outsider to see no matches, got %d", len(hidden))
	}
	if _, err := svc.Search(ctx, userBob, "   ", 10, 0); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestMessageServiceNotConfigured(t *testing.T) {
	var svc *MessageService
	if _, err := svc.Post(context.Background(), userAlice, PostMessageInput{}); !errors.Is(err, ErrMessageServiceNotConfigured) {
		t.Fatalf("expected ErrMessageServiceNotConfigured, got %v", err)
	}
}
