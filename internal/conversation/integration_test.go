//go:build integration
// +build integration

package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/fitcoach/fitcoach/internal/conversation"
	"github.com/fitcoach/fitcoach/internal/log"
	"github.com/fitcoach/fitcoach/internal/testutil"
)

// Run with: go test -tags=integration ./internal/conversation/...

func TestStoreIntegration(t *testing.T) {
	pg := testutil.StartPostgres(t)
	store := conversation.NewStore(conversation.NewQueries(pg.Pool), pg.Pool, log.NewNop())
	ctx := context.Background()

	t.Run("create get list delete", func(t *testing.T) {
		conv, err := store.Create(ctx, "Leg day plan")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := store.Get(ctx, conv.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Title != "Leg day plan" {
			t.Errorf("Title = %q, want %q", got.Title, "Leg day plan")
		}

		convs, err := store.List(ctx, 10, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(convs) == 0 {
			t.Fatal("List returned no conversations")
		}

		deleted, err := store.Delete(ctx, conv.ID)
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if !deleted {
			t.Error("Delete reported nothing removed")
		}
		if _, err := store.Get(ctx, conv.ID); !errors.Is(err, conversation.ErrNotFound) {
			t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("append assigns dense sequence numbers", func(t *testing.T) {
		conv, err := store.Create(ctx, "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		err = store.Append(ctx, conv.ID,
			conversation.Message{Role: conversation.RoleUser, Content: "How much protein do I need?"},
			conversation.Message{
				Role:    conversation.RoleAssistant,
				Content: "Around 1.6 g per kg of bodyweight.",
				Sources: []conversation.Source{{Name: "nutrition.md", Snippet: "protein intake", Similarity: 0.91}},
			},
		)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}

		history, err := store.History(ctx, conv.ID)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("len(history) = %d, want 2", len(history))
		}
		for i, msg := range history {
			if msg.Seq != i+1 {
				t.Errorf("history[%d].Seq = %d, want %d", i, msg.Seq, i+1)
			}
		}
		if len(history[1].Sources) != 1 || history[1].Sources[0].Name != "nutrition.md" {
			t.Errorf("assistant sources = %+v, want nutrition.md citation", history[1].Sources)
		}

		got, err := store.Get(ctx, conv.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.MessageCount != 2 {
			t.Errorf("MessageCount = %d, want 2", got.MessageCount)
		}
	})

	t.Run("concurrent appends never collide", func(t *testing.T) {
		conv, err := store.Create(ctx, "concurrency")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		const writers = 8
		var wg sync.WaitGroup
		errCh := make(chan error, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errCh <- store.Append(ctx, conv.ID,
					conversation.Message{Role: conversation.RoleUser, Content: fmt.Sprintf("question %d", i)},
					conversation.Message{Role: conversation.RoleAssistant, Content: fmt.Sprintf("answer %d", i)},
				)
			}()
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
		}

		history, err := store.History(ctx, conv.ID)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != writers*2 {
			t.Fatalf("len(history) = %d, want %d", len(history), writers*2)
		}
		for i, msg := range history {
			if msg.Seq != i+1 {
				t.Fatalf("history[%d].Seq = %d, want %d", i, msg.Seq, i+1)
			}
		}
	})

	t.Run("append to unknown conversation", func(t *testing.T) {
		err := store.Append(ctx, uuid.New(),
			conversation.Message{Role: conversation.RoleUser, Content: "hello"})
		if !errors.Is(err, conversation.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}
