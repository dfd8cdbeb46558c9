// Package backup optionally uploads a tarred snapshot of a filter's data
// directory to S3 after a flush, giving operators off-box recovery beyond
// the mmap files on local disk. It is a no-op unless a bucket is
// configured.
package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader archives a filter directory and ships it to S3.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewUploader loads AWS credentials from the environment/shared config and
// targets bucket for snapshot uploads. prefix namespaces the uploaded keys
// (e.g. "bloomd-backups/<hostname>").
func NewUploader(ctx context.Context, bucket, prefix string) (*Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: load aws config: %w", err)
	}
	return &Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Snapshot tars and gzips dir (a single "<dataDir>/bloomd.<name>" directory)
// and uploads it under "<prefix>/<name>/<timestamp>.tar.gz".
func (u *Uploader) Snapshot(ctx context.Context, name, dir string) error {
	archive, err := tarGzipDir(dir)
	if err != nil {
		return fmt.Errorf("backup: archive %s: %w", dir, err)
	}

	key := fmt.Sprintf("%s/%s/%d.tar.gz", u.prefix, name, time.Now().Unix())
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(archive),
	})
	if err != nil {
		return fmt.Errorf("backup: upload %s: %w", key, err)
	}
	return nil
}

func tarGzipDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
