package kvstore

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		path    string
		want    string
		wantErr bool
	}{
		{backend: BackendFS, path: filepath.Join(dir, "fs"), want: "*kvstore.FS"},
		{backend: BackendSQLite, path: filepath.Join(dir, "kv.db"), want: "*kvstore.SQLite"},
		{backend: BackendMemory, want: "*kvstore.Memory"},
		{backend: "redis", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			kvs, err := Open(tt.backend, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if c, ok := kvs.(io.Closer); ok {
				defer c.Close()
			}
			if got := fmt.Sprintf("%T", kvs); got != tt.want {
				t.Errorf("Open() returned %s, want %s", got, tt.want)
			}
			if err := kvs.Set("key", []byte("value")); err != nil {
				t.Errorf("Set() returned an error: %v", err)
			}
		})
	}
}
