package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeLister struct {
	objects []minio.ObjectInfo
}

func (f fakeLister) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.objects))
	for _, o := range f.objects {
		ch <- o
	}
	close(ch)
	return ch
}

func TestListAudioObjects(t *testing.T) {
	newest := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	lister := fakeLister{objects: []minio.ObjectInfo{
		{Key: "songs/rain.mp3", Size: 2048, LastModified: newest.Add(-time.Hour)},
		{Key: "songs/cover.png", Size: 10},
		{Key: "songs/forest.WAV", Size: 1024, LastModified: newest},
		{Key: "catalog/songs.json", Size: 5},
	}}

	objects, stats, err := ListAudioObjects(context.Background(), lister, "focusfm", "songs/")
	if err != nil {
		t.Fatalf("ListAudioObjects() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("len(objects) = %d, want 2", len(objects))
	}
	if stats.TotalObjects != 2 || stats.TotalSize != 3072 {
		t.Errorf("stats = %+v, want 2 objects / 3072 bytes", stats)
	}
	if !stats.LastModified.Equal(newest) {
		t.Errorf("LastModified = %v, want %v", stats.LastModified, newest)
	}
}

func TestListAudioObjectsError(t *testing.T) {
	lister := fakeLister{objects: []minio.ObjectInfo{{Err: errors.New("denied")}}}
	if _, _, err := ListAudioObjects(context.Background(), lister, "focusfm", ""); err == nil {
		t.Error("ListAudioObjects() error = nil, want listing error")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.size); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
