// SPDX-License-Identifier: EPL-2.0

package query

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/common/model"

	"runcell/internal/engine"
)

// PrometheusDriver queries a Prometheus-compatible HTTP API's instant query
// endpoint. prometheus/common/model (pulled in as a pack dependency via
// cuemby-warren's metrics stack) supplies the sample/vector types used to
// shape the result once the wire JSON is decoded.
type PrometheusDriver struct{}

type prometheusConn struct {
	client  *http.Client
	baseURL string
}

func (PrometheusDriver) Connect(ec *engine.ExecutionContext, connStr string) (any, error) {
	baseURL, err := ec.Resolver.Render(connStr)
	if err != nil {
		return nil, err
	}
	return &prometheusConn{client: &http.Client{Timeout: ConnectTimeout}, baseURL: baseURL}, nil
}

func (PrometheusDriver) Disconnect(any) {}

type promAPIResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  [2]any            `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

func (PrometheusDriver) Execute(ec *engine.ExecutionContext, conn any, queryText string) error {
	c := conn.(*prometheusConn)

	promQL, err := ec.Resolver.Render(queryText)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + "/api/v1/query?" + url.Values{"query": {promQL}}.Encode()
	req, err := http.NewRequestWithContext(ec.Context, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("prometheus: build request: %w", err)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("prometheus: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("prometheus: read response: %w", err)
	}

	var decoded promAPIResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("prometheus: decode response: %w", err)
	}
	if decoded.Status != "success" {
		return fmt.Errorf("prometheus: query failed: %s", decoded.Error)
	}

	vector := make(model.Vector, 0, len(decoded.Data.Result))
	for _, r := range decoded.Data.Result {
		labels := make(model.LabelSet, len(r.Metric))
		for k, v := range r.Metric {
			labels[model.LabelName(k)] = model.LabelValue(v)
		}
		ts, val := decodeSampleValue(r.Value)
		vector = append(vector, &model.Sample{
			Metric:    model.Metric(labels),
			Value:     val,
			Timestamp: ts,
		})
	}

	rows := make([]map[string]any, 0, len(vector))
	for _, s := range vector {
		rows = append(rows, map[string]any{
			"metric":    s.Metric.String(),
			"value":     float64(s.Value),
			"timestamp": s.Timestamp.Time(),
		})
	}

	ec.Object(Result{
		Columns:   []string{"metric", "value", "timestamp"},
		Rows:      rows,
		DurationS: time.Since(started).Seconds(),
	})
	return nil
}

func decodeSampleValue(v [2]any) (model.Time, model.SampleValue) {
	var ts model.Time
	if f, ok := v[0].(float64); ok {
		ts = model.TimeFromUnixNano(int64(f * float64(time.Second)))
	}
	var val model.SampleValue
	if s, ok := v[1].(string); ok {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			val = model.SampleValue(parsed)
		}
	}
	return ts, val
}
