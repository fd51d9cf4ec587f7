package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/VietCT04/Decentralised-Exchange/internal/config"
)

func TestNewSQLiteFileBackedUsesWAL(t *testing.T) {
	st, err := NewSQLite(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "events.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 2,
		BusyTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	var mode string
	if err := st.DB().QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("querying journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}
}

func TestNewSQLiteInMemorySkipsWAL(t *testing.T) {
	st, err := NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	var mode string
	if err := st.DB().QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("querying journal_mode failed: %v", err)
	}
	if mode != "memory" {
		t.Fatalf("expected memory journal mode, got %q", mode)
	}

	if _, err := st.DB().Exec("CREATE TABLE scratch (id INTEGER)"); err != nil {
		t.Fatalf("exec on in-memory store failed: %v", err)
	}
}
