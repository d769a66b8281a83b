package origin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"medialookup/logger"
)

// S3Lister - используемое подмножество клиента S3
type S3Lister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Суффикс размерного варианта изображения: "a-150x150.jpg"
var variantSuffix = regexp.MustCompile(`-\d+x\d+\.[^./]+$`)

// Store - хранилище ресурсов поверх S3-совместимого бакета. Все файлы
// ресурса (канонический и производные варианты) лежат под общим
// префиксом, поэтому перечисление вариантов - это листинг префикса:
// источником служат собственные сохраненные объекты ресурса, догадки
// не нужны.
type Store struct {
	client      S3Lister
	bucket      string
	keyTemplate string
}

// NewStore подключается к бакету хранилища ресурсов
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid origin config: %w", err)
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for origin store: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("Origin resource store ready (bucket: %s, endpoint: %s)", cfg.Bucket, cfg.Endpoint)

	return &Store{
		client:      client,
		bucket:      cfg.Bucket,
		keyTemplate: cfg.KeyTemplate,
	}, nil
}

// NewStoreWithClient создает хранилище с готовым клиентом (тесты)
func NewStoreWithClient(client S3Lister, bucket, keyTemplate string) *Store {
	return &Store{
		client:      client,
		bucket:      bucket,
		keyTemplate: keyTemplate,
	}
}

// prefix возвращает префикс объектов ресурса
func (s *Store) prefix(resourceID uint64) string {
	return fmt.Sprintf(s.keyTemplate, resourceID)
}

// listKeys перечисляет все ключи объектов ресурса
func (s *Store) listKeys(ctx context.Context, resourceID uint64) ([]string, error) {
	prefix := s.prefix(resourceID)

	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects of resource %d: %w", resourceID, err)
		}

		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, "/"+*obj.Key)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	return keys, nil
}

// CanonicalKey возвращает ключ канонического файла ресурса - первый
// объект без суффикса размерного варианта
func (s *Store) CanonicalKey(ctx context.Context, resourceID uint64) (string, error) {
	keys, err := s.listKeys(ctx, resourceID)
	if err != nil {
		return "", err
	}

	for _, key := range keys {
		if !variantSuffix.MatchString(key) {
			return key, nil
		}
	}

	if len(keys) > 0 {
		return keys[0], nil
	}
	return "", fmt.Errorf("resource %d has no stored objects", resourceID)
}

// VariantKeys возвращает ключи всех объектов ресурса, включая
// канонический: инвалидатору нужны все производные URL
func (s *Store) VariantKeys(ctx context.Context, resourceID uint64) ([]string, error) {
	return s.listKeys(ctx, resourceID)
}
