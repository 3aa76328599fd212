// Package s3 implements the AWS S3-compatible archive backend. It supports AWS
// S3, MinIO, DigitalOcean Spaces, and other S3-compatible services via a
// configurable endpoint. Multiple authentication methods are supported: the
// default AWS credential chain (recommended for EC2/EKS with IAM roles), static
// key/secret, OIDC web identity, and AssumeRole for cross-account access.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/storage"
)

func init() {
	// Register S3 archive backend
	storage.Register("s3", func(settings *models.ArchiveSettings) (storage.Backend, error) {
		return New(settings)
	})
}

// S3Backend implements the Backend interface for S3-compatible storage
type S3Backend struct {
	client *s3.Client
	bucket string
}

// New creates a new S3-compatible archive backend
//
// Authentication methods:
//   - "default" or empty: Uses AWS default credential chain (env vars, shared config, IAM role, IMDS)
//   - "static": Uses explicit access key and secret key
//   - "oidc": Uses Web Identity/OIDC token (for EKS, GitHub Actions, etc.)
//   - "assume_role": Assumes an IAM role (optionally with external ID for cross-account)
func New(settings *models.ArchiveSettings) (*S3Backend, error) {
	if settings.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}
	if settings.S3Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	// Build AWS config options
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(settings.S3Region))

	authMethod := settings.S3AuthMethod
	if authMethod == "" {
		// Backwards compatibility: if access keys are provided, use static auth
		if settings.S3AccessKeyID != "" && settings.S3SecretAccessKey != "" {
			authMethod = "static"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "static":
		if settings.S3AccessKeyID == "" || settings.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("s3_access_key_id and s3_secret_access_key are required for static auth")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.S3AccessKeyID, settings.S3SecretAccessKey, ""),
		))

	case "oidc", "assume_role":
		// Role-based credentials are configured after loading the base config

	case "default":
		// AWS default credential chain: env vars, shared config/credentials
		// files, IAM roles for EC2/ECS/Lambda, EKS web identity tokens

	default:
		return nil, fmt.Errorf("unsupported s3_auth_method: %s (must be 'default', 'static', 'oidc', or 'assume_role')", authMethod)
	}

	// Load base AWS configuration
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Configure OIDC or AssumeRole credentials (requires base config first)
	switch authMethod {
	case "oidc":
		if settings.S3RoleARN == "" {
			return nil, fmt.Errorf("s3_role_arn is required for OIDC auth")
		}
		if settings.S3WebIdentityFile == "" {
			return nil, fmt.Errorf("s3_web_identity_file is required for OIDC auth")
		}

		stsClient := sts.NewFromConfig(awsCfg)

		var webIdentityOpts []func(*stscreds.WebIdentityRoleOptions)
		if settings.S3RoleSessionName != "" {
			webIdentityOpts = append(webIdentityOpts, func(o *stscreds.WebIdentityRoleOptions) {
				o.RoleSessionName = settings.S3RoleSessionName
			})
		}

		provider := stscreds.NewWebIdentityRoleProvider(
			stsClient,
			settings.S3RoleARN,
			stscreds.IdentityTokenFile(settings.S3WebIdentityFile),
			webIdentityOpts...,
		)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)

	case "assume_role":
		if settings.S3RoleARN == "" {
			return nil, fmt.Errorf("s3_role_arn is required for assume_role auth")
		}

		stsClient := sts.NewFromConfig(awsCfg)

		var assumeRoleOpts []func(*stscreds.AssumeRoleOptions)
		if settings.S3RoleSessionName != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = settings.S3RoleSessionName
			})
		}
		if settings.S3ExternalID != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.ExternalID = aws.String(settings.S3ExternalID)
			})
		}

		provider := stscreds.NewAssumeRoleProvider(stsClient, settings.S3RoleARN, assumeRoleOpts...)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	// Build S3 client options
	var s3Opts []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, DigitalOcean Spaces, etc.)
	if settings.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(settings.S3Endpoint)
			// S3-compatible services generally require path-style addressing
			o.UsePathStyle = true
		})
	}

	return &S3Backend{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: settings.S3Bucket,
	}, nil
}

// Store writes an object to S3
func (b *S3Backend) Store(ctx context.Context, key string, data []byte) error {
	hasher := sha256.New()
	hasher.Write(data)
	checksum := hex.EncodeToString(hasher.Sum(nil))

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		// Store SHA256 in metadata so batches can be verified without download
		Metadata: map[string]string{
			"sha256": checksum,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store in S3: %w", err)
	}

	return nil
}

// Retrieve reads an object from S3
func (b *S3Backend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to retrieve from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	return data, nil
}

// Delete removes an object from S3. S3 treats deleting a missing key as
// success, so no not-found mapping is needed.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

// List returns the keys of stored objects beginning with prefix
func (b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	return keys, nil
}
