package main

import (
	"context"
	"log"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// GCSLedgerSourceAdapter reads CSV ledger objects from a GCS bucket, either a
// single object_key or every .csv object under object_prefix.
type GCSLedgerSourceAdapter struct {
	bucketName      string
	objectKey       string
	objectPrefix    string
	credentialsFile string
	processors      []processor.Processor
}

func NewGCSLedgerSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	adapter := &GCSLedgerSourceAdapter{}

	bucketName, ok := config["bucket_name"].(string)
	if !ok || bucketName == "" {
		return nil, errors.New("bucket_name must be specified")
	}
	adapter.bucketName = bucketName

	adapter.objectKey, _ = config["object_key"].(string)
	adapter.objectPrefix, _ = config["object_prefix"].(string)
	adapter.credentialsFile, _ = config["credentials_file"].(string)

	if adapter.objectKey == "" && adapter.objectPrefix == "" {
		return nil, errors.New("either object_key or object_prefix must be specified")
	}

	return adapter, nil
}

func (adapter *GCSLedgerSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *GCSLedgerSourceAdapter) Run(ctx context.Context) error {
	var opts []option.ClientOption
	if adapter.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(adapter.credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create GCS client")
	}
	defer client.Close()

	bucket := client.Bucket(adapter.bucketName)

	keys, err := adapter.resolveKeys(ctx, bucket)
	if err != nil {
		return err
	}

	for _, key := range keys {
		reader, err := bucket.Object(key).NewReader(ctx)
		if err != nil {
			return errors.Wrapf(err, "error opening gs://%s/%s", adapter.bucketName, key)
		}

		ledger, err := ParseLedgerCSV(reader)
		reader.Close()
		if err != nil {
			return errors.Wrapf(err, "error parsing %s", key)
		}

		log.Printf("Processing ledger object %s (%d transactions)", key, len(ledger))

		if err := forwardLedger(ctx, ledger, &processor.LedgerSourceMetadata{
			SourceType: "GCS",
			BucketName: adapter.bucketName,
			FilePath:   key,
			FileName:   path.Base(key),
			RowCount:   len(ledger),
		}, adapter.processors); err != nil {
			return err
		}
	}

	return nil
}

func (adapter *GCSLedgerSourceAdapter) resolveKeys(ctx context.Context, bucket *storage.BucketHandle) ([]string, error) {
	if adapter.objectKey != "" {
		return []string{adapter.objectKey}, nil
	}

	var keys []string
	it := bucket.Objects(ctx, &storage.Query{Prefix: adapter.objectPrefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error listing gs://%s/%s", adapter.bucketName, adapter.objectPrefix)
		}
		if strings.HasSuffix(strings.ToLower(attrs.Name), ".csv") {
			keys = append(keys, attrs.Name)
		}
	}

	if len(keys) == 0 {
		return nil, errors.Errorf("no CSV objects under gs://%s/%s", adapter.bucketName, adapter.objectPrefix)
	}

	return keys, nil
}
