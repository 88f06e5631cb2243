package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/filesearch/internal/config"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3StorePutGet(t *testing.T) {
	ctx := context.Background()
	api := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	st := &s3Store{api: api, bucket: "reports"}

	ref, err := st.Put(ctx, "eval/report.json", bytes.NewReader([]byte(`{}`)), PutOptions{MimeType: "application/json"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "s3://reports/eval/report.json" {
		t.Fatalf("ref = %q", ref)
	}
	if api.types["eval/report.json"] != "application/json" {
		t.Fatalf("content type = %q", api.types["eval/report.json"])
	}

	rc, err := st.Get(ctx, "eval/report.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); string(data) != "{}" {
		t.Fatalf("Get data = %q", data)
	}
	if _, err := st.Get(ctx, "missing.json"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestS3StoreExists(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		headErr error
		key     string
		want    bool
		wantErr bool
	}{
		{name: "present", key: "a.json", want: true},
		{name: "typed not found", key: "b.json"},
		{name: "bare 404", headErr: &smithy.GenericAPIError{Code: "NotFound"}, key: "a.json"},
		{name: "access denied", headErr: &smithy.GenericAPIError{Code: "AccessDenied"}, key: "a.json", wantErr: true},
		{name: "transport", headErr: errors.New("dial tcp: refused"), key: "a.json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeS3{objects: map[string][]byte{"a.json": nil}, types: map[string]string{}, headErr: tt.headErr}
			st := &s3Store{api: api, bucket: "reports"}
			got, err := st.Exists(ctx, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Exists() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("Exists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := newS3Store(context.Background(), config.S3Config{Region: "us-east-1"}, ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
