package storage

import (
	"context"
	"strings"
	"testing"

	"renderpull/internal/config"
	"renderpull/internal/ports"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      config.StorageConfig
		provider string
		wantErr  bool
	}{
		{"default is localfs", config.StorageConfig{Root: t.TempDir()}, "localfs", false},
		{"memory bucket", config.StorageConfig{Provider: "blob", BucketURL: "mem://"}, "blob", false},
		{"file bucket", config.StorageConfig{Provider: "blob", BucketURL: "file://" + t.TempDir()}, "blob", false},
		{"blob without url", config.StorageConfig{Provider: "blob"}, "", true},
		{"unknown provider", config.StorageConfig{Provider: "ftp"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, closeFn, err := NewProvider(ctx, tt.cfg)
			if closeFn == nil {
				t.Fatal("close function must never be nil")
			}
			defer closeFn()

			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if sp.Provider() != tt.provider {
				t.Errorf("expected provider %s, got %s", tt.provider, sp.Provider())
			}

			if _, err := sp.PutObject(ctx, ports.PutObjectInput{ObjectKey: "probe.png", Reader: strings.NewReader("x")}); err != nil {
				t.Fatalf("PutObject: %v", err)
			}
			info, err := sp.StatObject(ctx, "probe.png")
			if err != nil || info.Size != 1 {
				t.Errorf("StatObject = %+v, %v", info, err)
			}
		})
	}
}
