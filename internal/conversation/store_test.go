package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeQuerier implements Querier in memory.
type fakeQuerier struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]Conversation
	messages      map[uuid.UUID][]Message

	createErr error
	insertErr error
	touchErr  error
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		conversations: make(map[uuid.UUID]Conversation),
		messages:      make(map[uuid.UUID][]Message),
	}
}

func (f *fakeQuerier) CreateConversation(ctx context.Context, id uuid.UUID, title string) (Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return Conversation{}, f.createErr
	}
	now := time.Now()
	conv := Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	f.conversations[id] = conv
	return conv, nil
}

func (f *fakeQuerier) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, nil
}

func (f *fakeQuerier) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var convs []Conversation
	for _, c := range f.conversations {
		convs = append(convs, c)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	if offset >= len(convs) {
		return nil, nil
	}
	convs = convs[offset:]
	if limit < len(convs) {
		convs = convs[:limit]
	}
	return convs, nil
}

func (f *fakeQuerier) DeleteConversation(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[id]; !ok {
		return false, nil
	}
	delete(f.conversations, id)
	delete(f.messages, id)
	return true, nil
}

func (f *fakeQuerier) LockConversation(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (f *fakeQuerier) MaxSequenceNumber(ctx context.Context, conversationID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxSeq := 0
	for _, m := range f.messages[conversationID] {
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}
	return maxSeq, nil
}

func (f *fakeQuerier) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.messages[arg.ConversationID] = append(f.messages[arg.ConversationID], Message{
		ID:             arg.ID,
		ConversationID: arg.ConversationID,
		Role:           arg.Role,
		Content:        arg.Content,
		Sources:        arg.Sources,
		Seq:            arg.Seq,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (f *fakeQuerier) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]Message(nil), f.messages[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	return msgs, nil
}

func (f *fakeQuerier) TouchConversation(ctx context.Context, id uuid.UUID, messageCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	conv, ok := f.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	conv.MessageCount = messageCount
	conv.UpdatedAt = time.Now()
	f.conversations[id] = conv
	return nil
}

func TestStoreCreateDefaultTitle(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	conv, err := store.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if conv.Title == "" {
		t.Error("expected generated title for empty input")
	}
	if conv.ID == uuid.Nil {
		t.Error("expected non-nil id")
	}
}

func TestStoreCreateKeepsTitle(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	conv, err := store.Create(context.Background(), "leg day questions")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if conv.Title != "leg day questions" {
		t.Errorf("Title = %q", conv.Title)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	_, err := store.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	querier := newFakeQuerier()
	store := NewStore(querier, nil, nil)
	conv, err := store.Create(context.Background(), "temp")
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := store.Delete(context.Background(), conv.ID)
	if err != nil || !deleted {
		t.Fatalf("first Delete() = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = store.Delete(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if deleted {
		t.Error("second Delete() reported a deletion")
	}
}

func TestStoreAppendAndHistory(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	conv, err := store.Create(context.Background(), "squat form")
	if err != nil {
		t.Fatal(err)
	}

	err = store.Append(context.Background(), conv.ID,
		Message{Role: RoleUser, Content: "How deep should I squat?"},
		Message{Role: RoleAssistant, Content: "Aim for hips below parallel.", Sources: []Source{
			{Name: "squats.md", Snippet: "below parallel", Similarity: 0.92},
		}},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	history, err := store.History(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("roles out of order: %s, %s", history[0].Role, history[1].Role)
	}
	if history[0].Seq != 1 || history[1].Seq != 2 {
		t.Errorf("sequence numbers = %d, %d, want 1, 2", history[0].Seq, history[1].Seq)
	}
	if len(history[1].Sources) != 1 || history[1].Sources[0].Name != "squats.md" {
		t.Errorf("assistant sources not preserved: %+v", history[1].Sources)
	}
}

func TestStoreAppendContinuesSequence(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	conv, err := store.Create(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	for turn := range 3 {
		err := store.Append(context.Background(), conv.ID,
			Message{Role: RoleUser, Content: fmt.Sprintf("question %d", turn)},
			Message{Role: RoleAssistant, Content: fmt.Sprintf("answer %d", turn)},
		)
		if err != nil {
			t.Fatal(err)
		}
	}
	history, err := store.History(context.Background(), conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, msg := range history {
		if msg.Seq != i+1 {
			t.Errorf("message %d has seq %d, want %d", i, msg.Seq, i+1)
		}
	}
}

func TestStoreAppendUnknownConversation(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	err := store.Append(context.Background(), uuid.New(), Message{Role: RoleUser, Content: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreAppendInvalidRole(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	conv, err := store.Create(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	err = store.Append(context.Background(), conv.ID, Message{Role: "system", Content: "nope"})
	if err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestStoreAppendEmpty(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	if err := store.Append(context.Background(), uuid.New()); err != nil {
		t.Errorf("empty Append() error = %v", err)
	}
}

func TestStoreHistoryNotFound(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	_, err := store.History(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreListOrder(t *testing.T) {
	querier := newFakeQuerier()
	store := NewStore(querier, nil, nil)

	first, err := store.Create(context.Background(), "first")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := store.Create(context.Background(), "second")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)

	// Touch the older conversation so it becomes the most recent.
	if err := store.Append(context.Background(), first.ID, Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	convs, err := store.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != first.ID || convs[1].ID != second.ID {
		t.Errorf("list not ordered by recency: %s before %s", convs[0].Title, convs[1].Title)
	}
}

func TestStoreAppendUpdatesMessageCount(t *testing.T) {
	store := NewStore(newFakeQuerier(), nil, nil)
	conv, err := store.Create(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	err = store.Append(context.Background(), conv.ID,
		Message{Role: RoleUser, Content: "q"},
		Message{Role: RoleAssistant, Content: "a"},
	)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", got.MessageCount)
	}
}
