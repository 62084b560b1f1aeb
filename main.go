package main

import (
	"fmt"
	"os"

	"github.com/insightloop/rfm-pipeline-workflow/consumer"
	"github.com/insightloop/rfm-pipeline-workflow/internal/cli/cmd"
	"github.com/insightloop/rfm-pipeline-workflow/internal/cli/runner"
	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// Version information set via ldflags at build time
var (
	version   string
	gitCommit string
	buildDate string
)

func main() {
	cmd.SetVersionInfo(version, gitCommit, buildDate)
	cmd.SetFactories(runner.Factories{
		CreateSourceAdapter: createSourceAdapter,
		CreateProcessor:     createProcessor,
		CreateConsumer:      createConsumer,
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createSourceAdapter(sourceConfig runner.SourceConfig) (runner.SourceAdapter, error) {
	switch sourceConfig.Type {
	case "CSVLedgerSourceAdapter":
		return NewCSVLedgerSourceAdapter(sourceConfig.Config)
	case "FSLedgerSourceAdapter":
		return NewFSLedgerSourceAdapter(sourceConfig.Config)
	case "S3LedgerSourceAdapter":
		return NewS3LedgerSourceAdapter(sourceConfig.Config)
	case "GCSLedgerSourceAdapter":
		return NewGCSLedgerSourceAdapter(sourceConfig.Config)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceConfig.Type)
	}
}

func createProcessor(processorConfig processor.ProcessorConfig) (processor.Processor, error) {
	switch processorConfig.Type {
	case "RFMAggregation":
		return processor.NewRFMAggregationProcessor(processorConfig.Config)
	case "TransactionFilter":
		return processor.NewTransactionFilterProcessor(processorConfig.Config)
	case "SegmentInsight":
		return processor.NewSegmentInsightProcessor(processorConfig.Config)
	case "SegmentSummary":
		return processor.NewSegmentSummaryProcessor(processorConfig.Config)
	case "StdoutSink":
		return processor.NewStdoutSink(), nil
	default:
		return nil, fmt.Errorf("unsupported processor type: %s", processorConfig.Type)
	}
}

func createConsumer(consumerConfig consumer.ConsumerConfig) (processor.Processor, error) {
	switch consumerConfig.Type {
	case "SaveToCSV":
		return consumer.NewSaveToCSV(consumerConfig.Config)
	case "SaveToExcel":
		return consumer.NewSaveToExcel(consumerConfig.Config)
	case "SaveToPostgreSQL":
		return consumer.NewSaveToPostgreSQL(consumerConfig.Config)
	case "BufferedPostgreSQL":
		return consumer.NewBufferedPostgreSQL(consumerConfig.Config)
	case "SaveToDuckDB":
		return consumer.NewSaveToDuckDB(consumerConfig.Config)
	case "SaveToSQLite":
		return consumer.NewSaveToSQLite(consumerConfig.Config)
	case "SaveToClickHouse":
		return consumer.NewSaveToClickHouse(consumerConfig.Config)
	case "SaveToMongoDB":
		return consumer.NewSaveToMongoDB(consumerConfig.Config)
	case "SaveToRedis":
		return consumer.NewSaveToRedis(consumerConfig.Config)
	case "SaveToWebSocket":
		return consumer.NewSaveToWebSocket(consumerConfig.Config)
	case "NotificationDispatcher":
		return consumer.NewNotificationDispatcher(consumerConfig.Config)
	case "StdoutConsumer":
		return consumer.NewStdoutConsumer(consumerConfig.Config)
	default:
		return nil, fmt.Errorf("unsupported consumer type: %s", consumerConfig.Type)
	}
}
