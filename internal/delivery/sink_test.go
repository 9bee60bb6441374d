package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npisearch/internal/config"
)

type recordedPut struct {
	path        string
	contentType string
}

type mockS3 struct {
	mu   sync.Mutex
	puts []recordedPut
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	m.mu.Lock()
	m.puts = append(m.puts, recordedPut{path: req.URL.Path, contentType: req.Header.Get("Content-Type")})
	m.mu.Unlock()
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"Etag": {"\"etag123\""}}}, nil
}

func writeExport(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "1033933064.xlsx")
	require.NoError(t, os.WriteFile(p, []byte("xlsx-bytes"), 0o644))
	return p
}

func TestLocalSinkReturnsAbsolutePath(t *testing.T) {
	p := writeExport(t)
	loc, err := LocalSink{}.Deliver(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "local", loc.Sink)
	assert.True(t, filepath.IsAbs(loc.Path))
	assert.Equal(t, loc.Path, loc.String())
}

func TestS3SinkUploadsAndPresigns(t *testing.T) {
	rt := &mockS3{}
	sink, err := NewS3Sink(context.Background(), S3Config{
		Bucket:          "exports-bucket",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		Prefix:          "/npi/",
		PresignExpiry:   15 * time.Minute,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
	})
	require.NoError(t, err)

	loc, err := sink.Deliver(context.Background(), writeExport(t))
	require.NoError(t, err)

	require.Len(t, rt.puts, 1)
	assert.Equal(t, "/exports-bucket/npi/1033933064.xlsx", rt.puts[0].path)
	assert.Equal(t, xlsxContentType, rt.puts[0].contentType)

	assert.Equal(t, "s3", loc.Sink)
	assert.Equal(t, "s3://exports-bucket/npi/1033933064.xlsx", loc.Path)
	assert.True(t, strings.HasPrefix(loc.URL, "https://mock.s3.local/exports-bucket/npi/1033933064.xlsx?"), loc.URL)
	assert.Contains(t, loc.URL, "X-Amz-Expires=900")
	assert.Equal(t, loc.URL, loc.String())
}

func TestS3SinkMissingFile(t *testing.T) {
	sink, err := NewS3Sink(context.Background(), S3Config{Bucket: "b", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"},
		func(o *s3.Options) { o.HTTPClient = &http.Client{Transport: &mockS3{}} })
	require.NoError(t, err)

	_, err = sink.Deliver(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/missing.xlsx")
}

func TestNewSelectsSink(t *testing.T) {
	sink, err := New(context.Background(), config.Config{ExportSink: "local"})
	require.NoError(t, err)
	assert.IsType(t, LocalSink{}, sink)

	_, err = New(context.Background(), config.Config{ExportSink: "s3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXPORT_S3_BUCKET")

	_, err = New(context.Background(), config.Config{ExportSink: "ftp"})
	require.Error(t, err)
}
