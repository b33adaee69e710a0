// Package codec converts between exchanges and broker payloads.
//
// Transports decode payloads into exchange bodies with a [Decoder] and encode
// completed aggregates with an [Encoder]. [ResultHeaders] flattens an
// aggregate's string headers and aggregation properties into broker headers.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fxsml/goaggregate/aggregate"
	"github.com/fxsml/goaggregate/message"
)

// Broker headers set on published aggregates.
const (
	HeaderAggregatedSize        = "Aggregated-Size"
	HeaderAggregatedCompletedBy = "Aggregated-Completed-By"
	HeaderAggregatedKey         = "Aggregated-Correlation-Key"
	HeaderExchangeID            = "Exchange-Id"
)

// Decoder converts a payload into an exchange body.
type Decoder func(data []byte) (any, error)

// Encoder converts an exchange into a payload.
type Encoder func(ex *message.Exchange) ([]byte, error)

// DecodeJSON decodes valid JSON payloads and keeps anything else as []byte.
func DecodeJSON(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return append([]byte(nil), data...), nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeJSON encodes the body as JSON. A []byte body is sent unchanged.
func EncodeJSON(ex *message.Exchange) ([]byte, error) {
	if b, ok := ex.Body.([]byte); ok {
		return b, nil
	}
	return json.Marshal(ex.Body)
}

var resultProperties = map[string]string{
	aggregate.PropAggregatedSize:           HeaderAggregatedSize,
	aggregate.PropAggregatedCompletedBy:    HeaderAggregatedCompletedBy,
	aggregate.PropAggregatedCorrelationKey: HeaderAggregatedKey,
}

// ResultHeaders returns the string headers of ex, minus skip, plus the
// aggregation result properties and the exchange ID.
func ResultHeaders(ex *message.Exchange, skip ...string) map[string]string {
	h := make(map[string]string, len(ex.Headers)+len(resultProperties)+1)
outer:
	for k, v := range ex.Headers {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		if s, ok := v.(string); ok {
			h[k] = s
		}
	}
	for prop, name := range resultProperties {
		if v, ok := ex.Properties[prop]; ok {
			h[name] = fmt.Sprint(v)
		}
	}
	h[HeaderExchangeID] = ex.ID
	return h
}
