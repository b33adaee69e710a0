package cloudevents

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/fxsml/goaggregate/aggregate"
	"github.com/fxsml/goaggregate/message"
)

func newEvent(t *testing.T, ct string, data []byte) *cloudevents.Event {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID("evt-1")
	e.SetType("order.line")
	e.SetSource("/shop")
	e.SetSubject("o-1")
	e.SetTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	e.SetExtension("orderid", "o-1")
	if data != nil {
		if err := e.SetData(ct, data); err != nil {
			t.Fatalf("set data: %v", err)
		}
	}
	return &e
}

func TestFromEvent(t *testing.T) {
	t.Run("nil event", func(t *testing.T) {
		if _, err := FromEvent(nil); !errors.Is(err, ErrNilEvent) {
			t.Errorf("expected ErrNilEvent, got %v", err)
		}
	})

	t.Run("json data", func(t *testing.T) {
		ex, err := FromEvent(newEvent(t, "application/json", []byte(`{"amount":5}`)))
		if err != nil {
			t.Fatal(err)
		}
		if ex.ID != "evt-1" {
			t.Errorf("ID = %q, want evt-1", ex.ID)
		}
		want := map[string]any{"amount": float64(5)}
		if !reflect.DeepEqual(ex.Body, want) {
			t.Errorf("Body = %#v, want %#v", ex.Body, want)
		}
		for k, v := range map[string]string{
			HeaderType:    "order.line",
			HeaderSource:  "/shop",
			HeaderSubject: "o-1",
			HeaderTime:    "2025-01-01T00:00:00Z",
			"orderid":     "o-1",
		} {
			if got, _ := ex.Headers.String(k); got != v {
				t.Errorf("header %s = %q, want %q", k, got, v)
			}
		}
	})

	t.Run("binary data", func(t *testing.T) {
		ex, err := FromEvent(newEvent(t, "application/octet-stream", []byte{0x01, 0x02}))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(ex.Body, []byte{0x01, 0x02}) {
			t.Errorf("Body = %#v", ex.Body)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := FromEvent(newEvent(t, "application/json", []byte(`{`))); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("no data", func(t *testing.T) {
		ex, err := FromEvent(newEvent(t, "", nil))
		if err != nil {
			t.Fatal(err)
		}
		if ex.Body != nil {
			t.Errorf("Body = %#v, want nil", ex.Body)
		}
	})
}

func TestToEvent(t *testing.T) {
	t.Run("aggregated result", func(t *testing.T) {
		ex := message.New([]any{1, 2}, message.Headers{
			"orderid":     "o-1",
			HeaderSubject: "o-1",
			"Not-Valid":   "skipped",
		})
		ex.Properties[aggregate.PropAggregatedSize] = 2
		ex.Properties[aggregate.PropAggregatedCompletedBy] = "size"
		ex.Properties[aggregate.PropAggregatedCorrelationKey] = "o-1"

		e, err := ToEvent(ex, "/aggregator")
		if err != nil {
			t.Fatal(err)
		}
		if e.ID() != ex.ID || e.Type() != DefaultType || e.Source() != "/aggregator" || e.Subject() != "o-1" {
			t.Errorf("unexpected attributes: %s", e)
		}
		if e.DataContentType() != cloudevents.ApplicationJSON {
			t.Errorf("DataContentType = %q", e.DataContentType())
		}
		var body []int
		if err := json.Unmarshal(e.Data(), &body); err != nil || !reflect.DeepEqual(body, []int{1, 2}) {
			t.Errorf("data = %s, err %v", e.Data(), err)
		}

		ext := e.Extensions()
		if ext["orderid"] != "o-1" || ext["aggkey"] != "o-1" || ext["aggcompletedby"] != "size" {
			t.Errorf("extensions = %v", ext)
		}
		if ext["aggsize"] != int32(2) {
			t.Errorf("aggsize = %#v, want int32(2)", ext["aggsize"])
		}
		if _, ok := ext["Not-Valid"]; ok {
			t.Error("invalid extension name was copied")
		}
	})

	t.Run("headers override defaults", func(t *testing.T) {
		ex := message.New("hello", message.Headers{HeaderType: "t", HeaderSource: "/s"})
		e, err := ToEvent(ex, "/fallback")
		if err != nil {
			t.Fatal(err)
		}
		if e.Type() != "t" || e.Source() != "/s" {
			t.Errorf("type/source = %s/%s", e.Type(), e.Source())
		}
		if e.DataContentType() != "text/plain" || string(e.Data()) != "hello" {
			t.Errorf("data = %s (%s)", e.Data(), e.DataContentType())
		}
	})

	t.Run("set body", func(t *testing.T) {
		ex := message.New(aggregate.NewSet("a", "b"), nil)
		e, err := ToEvent(ex, "/s")
		if err != nil {
			t.Fatal(err)
		}
		if string(e.Data()) != `["a","b"]` {
			t.Errorf("data = %s", e.Data())
		}
	})

	t.Run("missing source", func(t *testing.T) {
		if _, err := ToEvent(message.New(nil, nil), ""); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("nil exchange", func(t *testing.T) {
		if _, err := ToEvent(nil, "/s"); !errors.Is(err, message.ErrNilExchange) {
			t.Errorf("expected ErrNilExchange, got %v", err)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	ex := message.New(map[string]any{"k": "v"}, message.Headers{"orderid": "o-7"})
	e, err := ToEvent(ex, "/s")
	if err != nil {
		t.Fatal(err)
	}
	back, err := FromEvent(e)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != ex.ID || !reflect.DeepEqual(back.Body, ex.Body) {
		t.Errorf("round trip = %v %v", back.ID, back.Body)
	}
	if v, _ := back.Headers.String("orderid"); v != "o-7" {
		t.Errorf("orderid = %q", v)
	}
}
