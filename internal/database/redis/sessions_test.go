package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kozaktomas/sketch-match/internal/database"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func TestSave_SetsTTLAndIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(),
			mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "SET" && cmd[1] == "session:s1" && cmd[3] == "EX" && cmd[4] == "3600"
			}),
			mock.Match("SADD", "user_sessions:u1", "s1"),
		).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString("OK")),
			mock.Result(mock.RedisInt64(1)),
		})

	s := NewSessionStoreForTest(c, fixedNow)
	err := s.Save(context.Background(), database.StoredSession{
		ID: "s1", UserID: "u1", CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSave_ExpiredIsSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := NewSessionStoreForTest(c, fixedNow)
	err := s.Save(context.Background(), database.StoredSession{ID: "s1", ExpiresAt: testNow.Add(-time.Second)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGet(t *testing.T) {
	live, _ := json.Marshal(database.StoredSession{ID: "s1", UserID: "u1", ExpiresAt: testNow.Add(time.Minute)})

	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "session:s1")).
		Return(mock.Result(mock.RedisString(string(live))))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "session:missing")).
		Return(mock.Result(mock.RedisNil()))

	s := NewSessionStoreForTest(c, fixedNow)

	got, err := s.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.UserID != "u1" {
		t.Fatalf("expected session for u1, got %+v", got)
	}

	got, err = s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing session, got %+v", got)
	}
}

func TestDeleteByUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SMEMBERS", "user_sessions:u1")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("a"), mock.RedisString("b"))))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "session:a", "session:b", "user_sessions:u1")).
		Return(mock.Result(mock.RedisInt64(3)))

	s := NewSessionStoreForTest(c, fixedNow)
	if err := s.DeleteByUser(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSessionStore_RequiresAddr(t *testing.T) {
	if _, err := NewSessionStore("", ""); err == nil {
		t.Error("expected error for empty address")
	}
}
