package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes each stored batch to the data lake as one JSON object.
type S3Archiver struct {
	svc    s3Putter
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Archiver(cfg aws.Config, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		svc:    s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type archivedBatch struct {
	DeviceID   string           `json:"device_id"`
	ArchivedAt time.Time        `json:"archived_at"`
	Readings   []domain.Reading `json:"readings"`
}

func (a *S3Archiver) Archive(ctx context.Context, deviceID string, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	at := a.now()
	data, err := json.Marshal(archivedBatch{DeviceID: deviceID, ArchivedAt: at, Readings: readings})
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	_, err = a.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(archiveKey(a.prefix, deviceID, at, uuid.NewString())),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"uploaded-at": at.Format(time.RFC3339),
			"device-id":   deviceID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload data file: %w", err)
	}
	return nil
}

// archiveKey lays objects out as prefix/device/yyyy/mm/dd/unixnano-id.json.
func archiveKey(prefix, deviceID string, at time.Time, id string) string {
	at = at.UTC()
	return path.Join(
		prefix,
		deviceID,
		fmt.Sprintf("%04d", at.Year()),
		fmt.Sprintf("%02d", int(at.Month())),
		fmt.Sprintf("%02d", at.Day()),
		fmt.Sprintf("%d-%s.json", at.UnixNano(), id),
	)
}
