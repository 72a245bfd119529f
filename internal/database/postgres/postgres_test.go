//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if _, err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func createTestUser(t *testing.T, ctx context.Context, repo *UserRepository, email string) *database.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &database.User{
		ID:           uuid.NewString(),
		Username:     "tester",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return u
}

func TestDetailRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewDetailRepository(pool)

	t.Run("UpsertAndGet", func(t *testing.T) {
		err := repo.UpsertDetail(ctx, database.DetailRecord{ImageID: "id1", Offense: "Theft", County: "Cook"})
		if err != nil {
			t.Fatalf("Failed to upsert detail: %v", err)
		}

		got, err := repo.GetDetail(ctx, "id1")
		if err != nil {
			t.Fatalf("Failed to get detail: %v", err)
		}
		if got == nil || got.Offense != "Theft" || got.County != "Cook" {
			t.Fatalf("Unexpected detail %+v", got)
		}

		missing, err := repo.GetDetail(ctx, "nope")
		if err != nil {
			t.Fatalf("Failed to get missing detail: %v", err)
		}
		if missing != nil {
			t.Error("Expected nil for missing detail")
		}
	})

	t.Run("GetDetailsSkipsUnknown", func(t *testing.T) {
		if err := repo.UpsertDetail(ctx, database.DetailRecord{ImageID: "id2", Offense: "Fraud"}); err != nil {
			t.Fatalf("Failed to upsert detail: %v", err)
		}

		got, err := repo.GetDetails(ctx, []string{"id2", "unknown", "id1"})
		if err != nil {
			t.Fatalf("Failed to get details: %v", err)
		}
		if len(got) != 2 || got[0].ImageID != "id2" || got[1].ImageID != "id1" {
			t.Errorf("Unexpected details %+v", got)
		}
	})

	t.Run("SetDetailURL", func(t *testing.T) {
		if err := repo.SetDetailURL(ctx, "id1", "https://cdn/id1.jpg"); err != nil {
			t.Fatalf("Failed to set url: %v", err)
		}
		if err := repo.SetDetailURL(ctx, "id9", "https://cdn/id9.jpg"); err != nil {
			t.Fatalf("Failed to set url on new record: %v", err)
		}

		got, _ := repo.GetDetail(ctx, "id1")
		if got.URL != "https://cdn/id1.jpg" || got.Offense != "Theft" {
			t.Errorf("SetDetailURL clobbered record: %+v", got)
		}

		count, err := repo.CountDetails(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3 details, got %d", count)
		}
	})
}

func TestUserAndSessionRepositories(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	sessions := NewSessionRepository(pool)

	u := createTestUser(t, ctx, users, "a@example.com")

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup := *u
		dup.ID = uuid.NewString()
		if err := users.CreateUser(ctx, &dup); !errors.Is(err, database.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("UpdatePassword", func(t *testing.T) {
		if err := users.UpdatePassword(ctx, u.ID, "new-hash"); err != nil {
			t.Fatalf("Failed to update password: %v", err)
		}
		got, _ := users.GetUserByEmail(ctx, "a@example.com")
		if got == nil || got.PasswordHash != "new-hash" {
			t.Errorf("Password not updated: %+v", got)
		}
	})

	t.Run("Sessions", func(t *testing.T) {
		now := time.Now()
		live := database.StoredSession{ID: "live", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		dead := database.StoredSession{ID: "dead", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}
		for _, s := range []database.StoredSession{live, dead} {
			if err := sessions.Save(ctx, s); err != nil {
				t.Fatalf("Failed to save session: %v", err)
			}
		}

		got, err := sessions.Get(ctx, "live")
		if err != nil || got == nil || got.UserID != u.ID {
			t.Fatalf("Get(live) = %+v, %v", got, err)
		}
		if expired, _ := sessions.Get(ctx, "dead"); expired != nil {
			t.Error("Expected expired session to be hidden")
		}

		n, err := sessions.DeleteExpired(ctx)
		if err != nil || n != 1 {
			t.Errorf("DeleteExpired() = %d, %v", n, err)
		}

		if err := sessions.DeleteByUser(ctx, u.ID); err != nil {
			t.Fatalf("Failed to delete user sessions: %v", err)
		}
		if got, _ := sessions.Get(ctx, "live"); got != nil {
			t.Error("Expected session deleted")
		}
	})

	t.Run("ResetTokens", func(t *testing.T) {
		tokens := NewResetTokenRepository(pool)
		tok := database.ResetToken{ID: uuid.NewString(), UserID: u.ID, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
		if err := tokens.SaveResetToken(ctx, tok); err != nil {
			t.Fatalf("Failed to save reset token: %v", err)
		}

		ok, err := tokens.MarkResetTokenUsed(ctx, tok.ID)
		if err != nil || !ok {
			t.Fatalf("MarkResetTokenUsed() = %v, %v", ok, err)
		}
		ok, _ = tokens.MarkResetTokenUsed(ctx, tok.ID)
		if ok {
			t.Error("Expected second use to fail")
		}

		got, _ := tokens.GetResetToken(ctx, tok.ID)
		if got == nil || got.UsedAt == nil {
			t.Errorf("Expected used token, got %+v", got)
		}
	})
}

func TestHistoryAndGeneratedRepositories(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	u := createTestUser(t, ctx, NewUserRepository(pool), "h@example.com")

	history := NewHistoryRepository(pool)
	item := &database.HistoryItem{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		SrcImages: []string{"data:image/png;base64,AAAA"},
		Results:   []database.HistoryResult{{ResImage: "https://cdn/id1.jpg", Accuracy: 91.2, Description: "Theft"}},
		CreatedAt: time.Now(),
	}
	if err := history.SaveHistory(ctx, item); err != nil {
		t.Fatalf("Failed to save history: %v", err)
	}
	items, err := history.ListHistory(ctx, u.ID)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(items) != 1 || len(items[0].Results) != 1 || items[0].Results[0].Accuracy != 91.2 {
		t.Errorf("Unexpected history %+v", items)
	}

	generated := NewGeneratedImageRepository(pool)
	for i, name := range []string{"older", "newer"} {
		img := &database.GeneratedImage{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			Name:      name,
			Image:     "data:image/png;base64,AAAA",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := generated.SaveGeneratedImage(ctx, img); err != nil {
			t.Fatalf("Failed to save generated image: %v", err)
		}
	}
	images, err := generated.ListGeneratedImages(ctx, u.ID)
	if err != nil {
		t.Fatalf("Failed to list generated images: %v", err)
	}
	if len(images) != 2 || images[0].Name != "newer" {
		t.Errorf("Expected newest first, got %+v", images)
	}
}
