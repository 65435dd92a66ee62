package kvstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	kvs, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := kvs.Get("antani"); !errors.Is(err, ErrNoSuchKey) {
		t.Fatal("not the error we expected", err)
	}
	if err := kvs.Set("antani", []byte("foo")); err != nil {
		t.Fatal(err)
	}
	if err := kvs.Set("antani", []byte("foobar")); err != nil {
		t.Fatal(err)
	}
	if err := kvs.Close(); err != nil {
		t.Fatal(err)
	}

	// Values survive reopening the database.
	kvs, err = NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer kvs.Close()
	ovalue, err := kvs.Get("antani")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ovalue, []byte("foobar")) {
		t.Fatalf("invalid value %q", ovalue)
	}
}

func TestSQLiteInvalidPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "kv.db"))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestSQLiteGetFailures(t *testing.T) {
	t.Run("locked database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kv.db")
		kvs, err := NewSQLite(path + "?_busy_timeout=10")
		if err != nil {
			t.Fatal(err)
		}
		defer kvs.Close()
		if err := kvs.Set("key", []byte("value")); err != nil {
			t.Fatal(err)
		}

		// Hold an exclusive lock from another connection.
		other, err := sql.Open("sqlite3", path)
		if err != nil {
			t.Fatal(err)
		}
		defer other.Close()
		ctx := context.Background()
		conn, err := other.Conn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()
		if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
			t.Fatal(err)
		}
		defer conn.ExecContext(ctx, "ROLLBACK")

		_, err = kvs.Get("key")
		if err == nil {
			t.Fatalf("Get() on a locked database did not fail")
		}
		if errors.Is(err, ErrNoSuchKey) {
			t.Errorf("Get() error = %v, must not match ErrNoSuchKey", err)
		}
	})

	t.Run("closed database", func(t *testing.T) {
		kvs, err := NewSQLite(filepath.Join(t.TempDir(), "kv.db"))
		if err != nil {
			t.Fatal(err)
		}
		kvs.Close()
		_, err = kvs.Get("key")
		if err == nil || errors.Is(err, ErrNoSuchKey) {
			t.Errorf("Get() error = %v, want a non ErrNoSuchKey error", err)
		}
	})
}
