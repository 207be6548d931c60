package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awscreds "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/HuynhDucPhu2502/Flickr/internal/config"
)

// StorageService is the profile-photo blob store. MinIO when an
// endpoint is configured, AWS S3 otherwise.
type StorageService struct {
	cfg         *config.Config
	s3Client    *s3.S3
	minioClient *minio.Client
	useMinIO    bool
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	service := &StorageService{cfg: cfg}

	if cfg.MinIOEndpoint != "" {
		service.useMinIO = true
		minioClient, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create MinIO client: %w", err)
		}
		service.minioClient = minioClient
	} else {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.AWSRegion),
			Credentials: awscreds.NewStaticCredentials(
				cfg.AWSAccessKeyID,
				cfg.AWSSecretAccessKey,
				"",
			),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		service.s3Client = s3.New(sess)
	}

	return service, nil
}

// UploadFile stores the object and returns its public URL.
func (s *StorageService) UploadFile(ctx context.Context, file io.Reader, size int64, filename, contentType string) (string, error) {
	if s.useMinIO {
		return s.uploadToMinIO(ctx, file, size, filename, contentType)
	}
	return s.uploadToS3(file, filename, contentType)
}

// DeleteFile removes the object a previously returned URL points at.
func (s *StorageService) DeleteFile(ctx context.Context, url string) error {
	key := s.extractKeyFromURL(url)
	if key == "" {
		return fmt.Errorf("invalid file URL")
	}
	if s.useMinIO {
		return s.deleteFromMinIO(ctx, key)
	}
	return s.deleteFromS3(key)
}

func (s *StorageService) uploadToS3(file io.Reader, filename, contentType string) (string, error) {
	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.StorageBucket),
		Key:         aws.String(filename),
		Body:        bytes.NewReader(fileBytes),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.StorageBucket, s.cfg.AWSRegion, filename)
	return url, nil
}

func (s *StorageService) uploadToMinIO(ctx context.Context, file io.Reader, size int64, filename, contentType string) (string, error) {
	_, err := s.minioClient.PutObject(ctx, s.cfg.StorageBucket, filename, file, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}

	protocol := "http"
	if s.cfg.MinIOUseSSL {
		protocol = "https"
	}
	url := fmt.Sprintf("%s://%s/%s/%s", protocol, s.cfg.MinIOEndpoint, s.cfg.StorageBucket, filename)
	return url, nil
}

func (s *StorageService) deleteFromS3(key string) error {
	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.StorageBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (s *StorageService) deleteFromMinIO(ctx context.Context, key string) error {
	if err := s.minioClient.RemoveObject(ctx, s.cfg.StorageBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return nil
}

func (s *StorageService) extractKeyFromURL(url string) string {
	if !strings.Contains(url, "amazonaws.com") && !strings.Contains(url, s.cfg.MinIOEndpoint) {
		return ""
	}
	parts := strings.SplitN(url, "/", 4)
	if len(parts) != 4 || parts[3] == "" {
		return ""
	}
	if s.useMinIO {
		// minio URLs carry the bucket as the first path segment
		return strings.TrimPrefix(parts[3], s.cfg.StorageBucket+"/")
	}
	return parts[3]
}

// EnsureBucket creates the bucket when missing. Called once at startup.
func (s *StorageService) EnsureBucket(ctx context.Context) error {
	if !s.useMinIO {
		_, err := s.s3Client.CreateBucket(&s3.CreateBucketInput{
			Bucket: aws.String(s.cfg.StorageBucket),
		})
		if err != nil && !strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return fmt.Errorf("failed to create S3 bucket: %w", err)
		}
		return nil
	}

	exists, err := s.minioClient.BucketExists(ctx, s.cfg.StorageBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.minioClient.MakeBucket(ctx, s.cfg.StorageBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create MinIO bucket: %w", err)
		}
	}
	return nil
}

// GenerateUniqueFilename keeps the original extension and prefixes a
// timestamp plus random suffix so uploads never collide.
func GenerateUniqueFilename(originalName string) string {
	ext := filepath.Ext(originalName)
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), hex.EncodeToString(suffix), ext)
}
