package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

type fakeS3 struct {
	puts       []*s3.PutObjectInput
	bodies     [][]byte
	headErr    error
	createdFor string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdFor = aws.ToString(in.Bucket)
	return &s3.CreateBucketOutput{}, nil
}

func TestGetObjectKey(t *testing.T) {
	cfg := &Config{}
	at := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, "reports/reconciliation/2026/03/run-1.json", cfg.GetObjectKey("run-1", at))
}

func TestArchiveReconcileReport(t *testing.T) {
	fake := &fakeS3{}
	c := &Client{s3Client: fake, config: &Config{BucketName: "docupay-reports"}}

	report := &settlement.ReconcileReport{
		RunID:     "3f0c",
		StartedAt: time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC),
		Checked:   4,
		Corrected: 1,
	}
	require.NoError(t, c.ArchiveReconcileReport(context.Background(), report))
	require.Len(t, fake.puts, 1)

	put := fake.puts[0]
	assert.Equal(t, "docupay-reports", aws.ToString(put.Bucket))
	assert.Equal(t, "reports/reconciliation/2026/03/3f0c.json", aws.ToString(put.Key))
	assert.Equal(t, "application/json", aws.ToString(put.ContentType))

	var decoded settlement.ReconcileReport
	require.NoError(t, json.Unmarshal(fake.bodies[0], &decoded))
	assert.Equal(t, 4, decoded.Checked)
}

func TestEnsureBucketCreatesOutsideProd(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	fake := &fakeS3{headErr: errors.New("not found")}
	c := &Client{s3Client: fake, config: &Config{BucketName: "docupay-reports", Region: "us-east-1"}}

	require.NoError(t, c.ensureBucket(context.Background()))
	assert.Equal(t, "docupay-reports", fake.createdFor)

	t.Setenv("APP_ENV", "prod")
	fake.createdFor = ""
	assert.Error(t, c.ensureBucket(context.Background()))
	assert.Empty(t, fake.createdFor)
}

func TestLoadConfigRequiresCredentialsWhenEnabled(t *testing.T) {
	t.Setenv("REPORT_ARCHIVE_ENABLED", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("REPORT_ARCHIVE_ENABLED", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
}
