package main

import (
	"bytes"
	"context"
	"log"
	"path"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// S3LedgerSourceAdapter downloads CSV ledger objects from an S3 bucket. With
// object_key set it reads that one object; with object_prefix it lists and
// processes every .csv object under the prefix.
type S3LedgerSourceAdapter struct {
	config     S3LedgerSourceConfig
	processors []processor.Processor
}

type S3LedgerSourceConfig struct {
	BucketName   string
	Region       string
	ObjectKey    string
	ObjectPrefix string
}

func NewS3LedgerSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	var s3Config S3LedgerSourceConfig

	if bucket, ok := config["bucket_name"].(string); ok {
		s3Config.BucketName = bucket
	} else {
		return nil, errors.New("bucket_name must be specified")
	}

	if region, ok := config["region"].(string); ok {
		s3Config.Region = region
	} else {
		s3Config.Region = "us-east-1"
	}

	s3Config.ObjectKey, _ = config["object_key"].(string)
	s3Config.ObjectPrefix, _ = config["object_prefix"].(string)

	if s3Config.ObjectKey == "" && s3Config.ObjectPrefix == "" {
		return nil, errors.New("either object_key or object_prefix must be specified")
	}

	return &S3LedgerSourceAdapter{config: s3Config}, nil
}

func (adapter *S3LedgerSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *S3LedgerSourceAdapter) Run(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(adapter.config.Region))
	if err != nil {
		return errors.Wrap(err, "error loading AWS config")
	}

	client := s3.NewFromConfig(awsCfg)
	downloader := manager.NewDownloader(client)

	keys, err := adapter.resolveKeys(ctx, client)
	if err != nil {
		return err
	}

	for _, key := range keys {
		buf := manager.NewWriteAtBuffer([]byte{})
		_, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
			Bucket: &adapter.config.BucketName,
			Key:    &key,
		})
		if err != nil {
			return errors.Wrapf(err, "error downloading s3://%s/%s", adapter.config.BucketName, key)
		}

		ledger, err := ParseLedgerCSV(bytes.NewReader(buf.Bytes()))
		if err != nil {
			return errors.Wrapf(err, "error parsing %s", key)
		}

		log.Printf("Processing ledger object %s (%d transactions)", key, len(ledger))

		if err := forwardLedger(ctx, ledger, &processor.LedgerSourceMetadata{
			SourceType: "S3",
			BucketName: adapter.config.BucketName,
			FilePath:   key,
			FileName:   path.Base(key),
			RowCount:   len(ledger),
		}, adapter.processors); err != nil {
			return err
		}
	}

	return nil
}

func (adapter *S3LedgerSourceAdapter) resolveKeys(ctx context.Context, client *s3.Client) ([]string, error) {
	if adapter.config.ObjectKey != "" {
		return []string{adapter.config.ObjectKey}, nil
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: &adapter.config.BucketName,
		Prefix: &adapter.config.ObjectPrefix,
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "error listing s3://%s/%s", adapter.config.BucketName, adapter.config.ObjectPrefix)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && strings.HasSuffix(strings.ToLower(*obj.Key), ".csv") {
				keys = append(keys, *obj.Key)
			}
		}
	}

	if len(keys) == 0 {
		return nil, errors.Errorf("no CSV objects under s3://%s/%s", adapter.config.BucketName, adapter.config.ObjectPrefix)
	}

	return keys, nil
}
