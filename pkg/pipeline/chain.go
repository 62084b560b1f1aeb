package pipeline

import (
	"log"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// BuildProcessorChain links processors sequentially and subscribes every
// consumer to the last processor in the chain. With no processors the
// first consumer becomes the head and the rest hang off it.
func BuildProcessorChain(processors []processor.Processor, consumers []processor.Processor) {
	var last processor.Processor

	for _, p := range processors {
		if last != nil {
			last.Subscribe(p)
			log.Printf("Chained processor %T -> %T", last, p)
		}
		last = p
	}

	if last != nil {
		for _, c := range consumers {
			last.Subscribe(c)
			log.Printf("Chained processor %T -> consumer %T", last, c)
		}
	} else if len(consumers) > 0 {
		for i := 1; i < len(consumers); i++ {
			consumers[0].Subscribe(consumers[i])
			log.Printf("Chained consumer %T -> consumer %T", consumers[0], consumers[i])
		}
	}
}
