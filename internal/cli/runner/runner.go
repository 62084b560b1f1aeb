package runner

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/insightloop/rfm-pipeline-workflow/consumer"
	"github.com/insightloop/rfm-pipeline-workflow/pkg/pipeline"
	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

type Options struct {
	ConfigFile string
	Verbose    bool
}

// Factories supplies the component constructors. The source adapters
// live in the main package, so the wiring is injected rather than
// imported.
type Factories struct {
	CreateSourceAdapter func(SourceConfig) (SourceAdapter, error)
	CreateProcessor     func(processor.ProcessorConfig) (processor.Processor, error)
	CreateConsumer      func(consumer.ConsumerConfig) (processor.Processor, error)
}

type Runner struct {
	opts      Options
	factories Factories
}

type Config struct {
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
}

type PipelineConfig struct {
	Name       string                      `yaml:"name"`
	Source     SourceConfig                `yaml:"source"`
	Processors []processor.ProcessorConfig `yaml:"processors"`
	Consumers  []consumer.ConsumerConfig   `yaml:"consumers"`
}

type SourceConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

type SourceAdapter interface {
	Run(context.Context) error
	Subscribe(processor.Processor)
}

func New(opts Options, factories Factories) *Runner {
	return &Runner{
		opts:      opts,
		factories: factories,
	}
}

func (r *Runner) loadConfig() (Config, error) {
	var config Config

	configBytes, err := os.ReadFile(r.opts.ConfigFile)
	if err != nil {
		return config, fmt.Errorf("error reading config file %s: %w", r.opts.ConfigFile, err)
	}

	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("error parsing config: %w", err)
	}

	if len(config.Pipelines) == 0 {
		return config, fmt.Errorf("no pipelines defined in %s", r.opts.ConfigFile)
	}

	return config, nil
}

// Validate parses the configuration and checks that every referenced
// component type is known, without opening any sinks or sources.
func (r *Runner) Validate() error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	for name, pipelineConfig := range config.Pipelines {
		if pipelineConfig.Source.Type == "" {
			return fmt.Errorf("pipeline %s: missing source type", name)
		}
		for _, procConfig := range pipelineConfig.Processors {
			if procConfig.Type == "" {
				return fmt.Errorf("pipeline %s: processor with empty type", name)
			}
		}
		for _, consConfig := range pipelineConfig.Consumers {
			if consConfig.Type == "" {
				return fmt.Errorf("pipeline %s: consumer with empty type", name)
			}
		}
		if len(pipelineConfig.Consumers) == 0 {
			log.Printf("Warning: pipeline %s has no consumers, results will be discarded", name)
		}
	}

	return nil
}

func (r *Runner) Run(ctx context.Context) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	for name, pipelineConfig := range config.Pipelines {
		log.Printf("Starting pipeline: %s", name)
		if err := r.setupPipeline(ctx, pipelineConfig); err != nil {
			log.Printf("Pipeline error: error in pipeline %s: %v", name, err)
		}
	}

	log.Printf("All pipelines finished.")
	return nil
}

func (r *Runner) setupPipeline(ctx context.Context, pipelineConfig PipelineConfig) error {
	source, err := r.factories.CreateSourceAdapter(pipelineConfig.Source)
	if err != nil {
		return fmt.Errorf("error creating source: %w", err)
	}

	processors := make([]processor.Processor, len(pipelineConfig.Processors))
	for i, procConfig := range pipelineConfig.Processors {
		proc, err := r.factories.CreateProcessor(procConfig)
		if err != nil {
			return fmt.Errorf("error creating processor %s: %w", procConfig.Type, err)
		}
		processors[i] = proc
	}

	consumers := make([]processor.Processor, len(pipelineConfig.Consumers))
	for i, consConfig := range pipelineConfig.Consumers {
		cons, err := r.factories.CreateConsumer(consConfig)
		if err != nil {
			return fmt.Errorf("error creating consumer %s: %w", consConfig.Type, err)
		}
		consumers[i] = cons
	}

	pipeline.BuildProcessorChain(processors, consumers)

	if len(processors) > 0 {
		source.Subscribe(processors[0])
	} else if len(consumers) > 0 {
		source.Subscribe(consumers[0])
	}

	err = source.Run(ctx)

	log.Printf("Pipeline source completed, closing consumers...")
	for _, cons := range consumers {
		if closer, ok := cons.(interface{ Close() error }); ok {
			if closeErr := closer.Close(); closeErr != nil {
				log.Printf("Error closing consumer %T: %v", cons, closeErr)
			}
		}
	}

	return err
}
