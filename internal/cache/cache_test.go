package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/podbrief/podbrief/pkg/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestNewCache(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCache_ProfileOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	profile := &models.Profile{
		UserID:           "user-1",
		Email:            "user@example.com",
		SubscriptionTier: "pro",
		CurrentUsage:     12,
		UsageQuota:       50,
	}

	if err := cache.SetProfile(ctx, profile, time.Minute); err != nil {
		t.Fatalf("SetProfile failed: %v", err)
	}

	got, err := cache.GetProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected cached profile, got nil")
	}
	if got.SubscriptionTier != "pro" || got.CurrentUsage != 12 {
		t.Errorf("Unexpected profile: %+v", got)
	}

	if err := cache.DeleteProfile(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}

	got, err = cache.GetProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetProfile after delete failed: %v", err)
	}
	if got != nil {
		t.Error("Expected cache miss after delete")
	}
}

func TestCache_ProfileMiss(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	got, err := cache.GetProfile(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got != nil {
		t.Error("Expected nil on cache miss")
	}
}

func TestCache_SharedResultOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	result := &models.SharedResult{
		ID:       "row-1",
		ShareID:  "abc123",
		UploadID: "upload-1",
		UserID:   "user-1",
		Title:    "Episode 42",
		Content:  models.Payload{"showNotes": "notes"},
	}

	if err := cache.SetSharedResult(ctx, result, time.Minute); err != nil {
		t.Fatalf("SetSharedResult failed: %v", err)
	}

	got, err := cache.GetSharedResult(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetSharedResult failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected cached shared result")
	}
	if got.Title != "Episode 42" || got.UploadID != "upload-1" {
		t.Errorf("Unexpected shared result: %+v", got)
	}

	// Unknown share ids miss quietly.
	got, err = cache.GetSharedResult(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSharedResult miss failed: %v", err)
	}
	if got != nil {
		t.Error("Expected nil on miss")
	}
}

func TestCache_Stats(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cache.IncrementStat(ctx, "transcriptions"); err != nil {
			t.Fatalf("IncrementStat failed: %v", err)
		}
	}

	count, err := cache.GetStat(ctx, "transcriptions")
	if err != nil {
		t.Fatalf("GetStat failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3, got %d", count)
	}
}
