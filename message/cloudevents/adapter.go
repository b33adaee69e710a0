package cloudevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/fxsml/goaggregate/aggregate"
	"github.com/fxsml/goaggregate/message"
)

// Header names holding CloudEvents context attributes.
const (
	HeaderType            = "type"
	HeaderSource          = "source"
	HeaderSubject         = "subject"
	HeaderTime            = "time"
	HeaderDataContentType = "datacontenttype"
	HeaderDataSchema      = "dataschema"
)

// DefaultType is the event type of aggregated results without a type header.
const DefaultType = "io.goaggregate.aggregated"

// ErrNilEvent is returned when converting a nil event.
var ErrNilEvent = errors.New("cloudevents: nil event")

var aggregateExtensions = map[string]string{
	aggregate.PropAggregatedSize:           "aggsize",
	aggregate.PropAggregatedCompletedBy:    "aggcompletedby",
	aggregate.PropAggregatedCorrelationKey: "aggkey",
}

// FromEvent converts e into an exchange.
// JSON data is decoded into the body, other data is kept as []byte.
// Context attributes and extensions become headers.
func FromEvent(e *cloudevents.Event) (*message.Exchange, error) {
	if e == nil {
		return nil, ErrNilEvent
	}

	headers := message.Headers{
		HeaderType:   e.Type(),
		HeaderSource: e.Source(),
	}
	if v := e.Subject(); v != "" {
		headers[HeaderSubject] = v
	}
	if t := e.Time(); !t.IsZero() {
		headers[HeaderTime] = t.UTC().Format(time.RFC3339)
	}
	if v := e.DataContentType(); v != "" {
		headers[HeaderDataContentType] = v
	}
	if v := e.DataSchema(); v != "" {
		headers[HeaderDataSchema] = v
	}
	for k, v := range e.Extensions() {
		headers[k] = v
	}

	var body any
	if data := e.Data(); len(data) > 0 {
		if isJSON(e.DataMediaType(), data) {
			if err := json.Unmarshal(data, &body); err != nil {
				return nil, fmt.Errorf("cloudevents: decode data: %w", err)
			}
		} else {
			body = append([]byte(nil), data...)
		}
	}

	ex := message.New(body, headers)
	if id := e.ID(); id != "" {
		ex.ID = id
	}
	return ex, nil
}

// ToEvent converts ex into an event. The source header wins over source.
// Bodies of type []byte are sent as application/octet-stream, strings as
// text/plain and everything else as JSON.
func ToEvent(ex *message.Exchange, source string) (*cloudevents.Event, error) {
	if ex == nil {
		return nil, message.ErrNilExchange
	}

	e := cloudevents.NewEvent()
	e.SetID(ex.ID)
	e.SetType(DefaultType)
	e.SetSource(source)
	e.SetTime(time.Now())

	if v, ok := ex.Headers.String(HeaderType); ok && v != "" {
		e.SetType(v)
	}
	if v, ok := ex.Headers.String(HeaderSource); ok && v != "" {
		e.SetSource(v)
	}
	if v, ok := ex.Headers.String(HeaderSubject); ok && v != "" {
		e.SetSubject(v)
	}
	if v, ok := ex.Headers.String(HeaderDataSchema); ok && v != "" {
		e.SetDataSchema(v)
	}
	for k, v := range ex.Headers {
		switch k {
		case HeaderType, HeaderSource, HeaderSubject, HeaderTime, HeaderDataContentType, HeaderDataSchema, "id", "specversion":
			continue
		}
		if validExtension(k) {
			if err := e.SetExtension(k, extensionValue(v)); err != nil {
				return nil, fmt.Errorf("cloudevents: extension %s: %w", k, err)
			}
		}
	}
	for prop, ext := range aggregateExtensions {
		if v, ok := ex.Properties[prop]; ok {
			if err := e.SetExtension(ext, extensionValue(v)); err != nil {
				return nil, fmt.Errorf("cloudevents: extension %s: %w", ext, err)
			}
		}
	}

	if err := setData(&e, ex); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("cloudevents: %w", err)
	}
	return &e, nil
}

func setData(e *cloudevents.Event, ex *message.Exchange) error {
	ct, _ := ex.Headers.String(HeaderDataContentType)
	var err error
	switch b := ex.Body.(type) {
	case nil:
		return nil
	case []byte:
		if ct == "" {
			ct = "application/octet-stream"
		}
		err = e.SetData(ct, b)
	case string:
		if ct == "" {
			ct = "text/plain"
		}
		err = e.SetData(ct, []byte(b))
	default:
		err = e.SetData(cloudevents.ApplicationJSON, b)
	}
	if err != nil {
		return fmt.Errorf("cloudevents: set data: %w", err)
	}
	return nil
}

func isJSON(mediaType string, data []byte) bool {
	if mediaType == "" {
		return json.Valid(data)
	}
	return mediaType == cloudevents.ApplicationJSON || strings.HasSuffix(mediaType, "+json")
}

// validExtension reports whether name is a legal CloudEvents attribute name.
func validExtension(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func extensionValue(v any) any {
	switch v := v.(type) {
	case string, bool, int32, []byte, time.Time:
		return v
	case int:
		return int32(v)
	case int64:
		return int32(v)
	case time.Duration:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
