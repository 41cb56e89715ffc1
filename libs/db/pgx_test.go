package db

import (
	"context"
	"testing"
)

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error for missing pool")
	}
	if err := ReadyCheck(&Pool{})(context.Background()); err == nil {
		t.Fatal("expected error for empty pool")
	}
}

func TestOpenRejectsBadURL(t *testing.T) {
	if _, err := Open(context.Background(), "://not-a-url", Options{}); err == nil {
		t.Fatal("expected parse error")
	}
}
