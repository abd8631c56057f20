package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlobURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    *BlobRef
		wantErr bool
	}{
		{name: "azure", url: "https://acc.blob.core.windows.net/videos/a.mp4",
			want: &BlobRef{Account: "acc", Container: "videos", Blob: "a.mp4"}},
		{name: "nested", url: "https://acc.blob.core.windows.net/videos/dir/sub/a.mp4",
			want: &BlobRef{Account: "acc", Container: "videos", Blob: "dir/sub/a.mp4"}},
		{name: "escaped", url: "https://acc.blob.core.windows.net/videos/my%20video.mp4",
			want: &BlobRef{Account: "acc", Container: "videos", Blob: "my video.mp4"}},
		{name: "other host", url: "https://st.local:9000/videos/a.mp4",
			want: &BlobRef{Account: "st.local", Container: "videos", Blob: "a.mp4"}},
		{name: "http", url: "http://acc.blob.core.windows.net/videos/a.mp4", wantErr: true},
		{name: "no blob", url: "https://acc.blob.core.windows.net/videos", wantErr: true},
		{name: "no blob slash", url: "https://acc.blob.core.windows.net/videos/", wantErr: true},
		{name: "dir", url: "https://acc.blob.core.windows.net/videos/dir/", wantErr: true},
		{name: "no host", url: "https:///videos/a.mp4", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "garbage", url: "://olia", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlobURL(tt.url)
			if tt.wantErr {
				require.NotNil(t, err)
				assert.True(t, errors.Is(err, ErrMalformedNotification))
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlobRef_Name(t *testing.T) {
	assert.Equal(t, "a.mp4", (&BlobRef{Blob: "dir/a.mp4"}).Name())
	assert.Equal(t, "a.mp4", (&BlobRef{Blob: "a.mp4"}).Name())
}

func TestWorkflowID(t *testing.T) {
	b := &BlobRef{Account: "acc", Container: "videos", Blob: "a.mp4"}
	assert.Equal(t, WorkflowID(b, ""), WorkflowID(&BlobRef{Account: "acc", Container: "videos", Blob: "a.mp4"}, ""))
	assert.Equal(t, WorkflowID(b, "0x8D"), WorkflowID(b, `"0x8D"`))
	assert.NotEqual(t, WorkflowID(b, ""), WorkflowID(b, "0x8D"))
	assert.NotEqual(t, WorkflowID(b, "0x8D"), WorkflowID(b, "0x8E"))
	assert.NotEqual(t, WorkflowID(b, ""), WorkflowID(&BlobRef{Account: "acc", Container: "videos", Blob: "b.mp4"}, ""))
	assert.Equal(t, 36, len(WorkflowID(b, "")))
}
