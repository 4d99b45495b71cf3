package messaging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJob(t *testing.T) {
	body, ct, err := EncodeJob(Job{FileName: "cat.jpg"})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeText, ct)
	assert.Equal(t, "cat.jpg", string(body))

	body, ct, err = EncodeJob(Job{FileName: "cat.jpg", ImageBytes: []byte{0xff, 0xd8}})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, ct)
	assert.JSONEq(t, `{"fileName":"cat.jpg","imageBytes":"/9g="}`, string(body))

	_, _, err = EncodeJob(Job{FileName: "../etc/passwd"})
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestDecodeJob(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        Job
		wantErr     bool
	}{
		{
			name:        "plain file name",
			body:        "photo_001.jpg",
			contentType: ContentTypeText,
			want:        Job{FileName: "photo_001.jpg"},
		},
		{
			name: "plain file name without content type",
			body: " photo_001.jpg\n",
			want: Job{FileName: "photo_001.jpg"},
		},
		{
			name:        "inline json",
			body:        `{"fileName":"a.jpg","imageBytes":"AQID"}`,
			contentType: ContentTypeJSON,
			want:        Job{FileName: "a.jpg", ImageBytes: []byte{1, 2, 3}},
		},
		{
			name: "json sniffed without content type",
			body: `{"fileName":"a.jpg"}`,
			want: Job{FileName: "a.jpg"},
		},
		{
			name:        "empty body",
			body:        "",
			contentType: ContentTypeText,
			wantErr:     true,
		},
		{
			name:        "path traversal",
			body:        "../secret.jpg",
			contentType: ContentTypeText,
			wantErr:     true,
		},
		{
			name:        "windows separator",
			body:        `dir\a.jpg`,
			contentType: ContentTypeText,
			wantErr:     true,
		},
		{
			name:        "dot dot",
			body:        "..",
			contentType: ContentTypeText,
			wantErr:     true,
		},
		{
			name:        "malformed json",
			body:        `{"fileName":`,
			contentType: ContentTypeJSON,
			wantErr:     true,
		},
		{
			name:        "invalid utf8",
			body:        "\xff\xfe.jpg",
			contentType: ContentTypeText,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJob([]byte(tt.body), tt.contentType)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMessage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeResult(t *testing.T) {
	r, err := DecodeResult([]byte(`{"fileName":"a.jpg","backend":"gpu","elapsedMillis":42}`))
	require.NoError(t, err)
	assert.Equal(t, Result{FileName: "a.jpg", Backend: "gpu", ElapsedMillis: 42}, r)

	_, err = DecodeResult([]byte("a.jpg|GPU|42"))
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	_, err = DecodeResult([]byte(`{"fileName":"a.jpg"}`))
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestEncodeResult(t *testing.T) {
	body, err := EncodeResult(NewResult("a.jpg", "scalar", 1500*time.Millisecond))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fileName":"a.jpg","backend":"scalar","elapsedMillis":1500}`, string(body))
}
