package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/freightwise/shipmentqa/internal/util"
	"github.com/freightwise/shipmentqa/pkg/analytics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

const (
	datasetFetchParallelism = 4
	datasetFetchTries       = 3
)

// LoadAnalyticsDataset fetches every CSV export under the configured dataset
// prefix and merges them into one in-memory table. Objects download
// concurrently; row order follows the listing order so repeated loads of an
// unchanged bucket produce the same dataset.
func LoadAnalyticsDataset(ctx context.Context, client *s3.Client) (*analytics.Dataset, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	prefix := util.GetEnvString("ANALYTICS_DATASET_PREFIX", "analytics/")

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list dataset objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".csv") {
				keys = append(keys, key)
			}
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no dataset objects under s3://%s/%s", bucket, prefix)
	}

	parts := make([]*analytics.Dataset, len(keys))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(datasetFetchParallelism)
	for i := range keys {
		idx := i
		key := keys[i]
		eg.Go(func() error {
			raw, err := util.RetryWithContext(ectx, datasetFetchTries,
				func(ctx context.Context) ([]byte, error) {
					return GetFile(ctx, client, key)
				})
			if err != nil {
				return err
			}
			part, err := analytics.ReadCSV(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			parts[idx] = part
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return analytics.MergeDatasets(parts...), nil
}
