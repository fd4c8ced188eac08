package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// WriteText writes every metric family of gatherer to w in the Prometheus
// text exposition format.
func WriteText(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// CountSeries returns the number of series per family name.
func CountSeries(gatherer prometheus.Gatherer) (map[string]int, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}

	counts := make(map[string]int, len(families))
	for _, mf := range families {
		counts[mf.GetName()] = seriesIn(mf)
	}
	return counts, nil
}

func seriesIn(mf *dto.MetricFamily) int {
	return len(mf.GetMetric())
}
