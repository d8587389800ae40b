package proxy

import (
	"github.com/arin-halvorsen/scoped/reply"
	"github.com/arin-halvorsen/scoped/wire"
)

// Event keys used to tag the single wire.Variant mapping carried by every
// push on a search stream. Each message carries one event's keys: a single
// key, except a filters event, which carries both filters and filter_state.
const (
	eventCategory    = "category"
	eventResult      = "result"
	eventAnnotation  = "annotation"
	eventFilters     = "filters"
	eventFilterState = "filter_state"
	eventPreviewData = "preview-data"
	eventWidgets     = "widgets"
	eventFinish      = "finish"
)

func encodeCategory(cat reply.Category) wire.Variant {
	return wire.Mapping(
		[]string{eventCategory},
		map[string]wire.Variant{
			eventCategory: wire.Mapping(
				[]string{"id", "title", "icon", "renderer_template"},
				map[string]wire.Variant{
					"id":                wire.String(cat.ID),
					"title":             wire.String(cat.Title),
					"icon":              wire.String(cat.Icon),
					"renderer_template": wire.String(cat.RendererTemplate),
				},
			),
		},
	)
}

func decodeCategory(v wire.Variant) reply.Category {
	m, _, _ := v.Mapping()
	return reply.Category{
		ID:               stringField(m, "id"),
		Title:            stringField(m, "title"),
		Icon:             stringField(m, "icon"),
		RendererTemplate: stringField(m, "renderer_template"),
	}
}

func encodeResult(res reply.Result) wire.Variant {
	attrKeys := make([]string, 0, len(res.Attributes))
	for k := range res.Attributes {
		attrKeys = append(attrKeys, k)
	}
	attrs := wire.Mapping(attrKeys, res.Attributes)

	return wire.Mapping(
		[]string{eventResult},
		map[string]wire.Variant{
			eventResult: wire.Mapping(
				[]string{"uri", "title", "icon", "dnd_uri", "attributes", "category_id"},
				map[string]wire.Variant{
					"uri":         wire.String(res.URI),
					"title":       wire.String(res.Title),
					"icon":        wire.String(res.Icon),
					"dnd_uri":     wire.String(res.DndURI),
					"attributes":  attrs,
					"category_id": wire.String(res.CategoryID),
				},
			),
		},
	)
}

func decodeResult(v wire.Variant) reply.Result {
	m, _, _ := v.Mapping()
	res := reply.Result{
		URI:        stringField(m, "uri"),
		Title:      stringField(m, "title"),
		Icon:       stringField(m, "icon"),
		DndURI:     stringField(m, "dnd_uri"),
		CategoryID: stringField(m, "category_id"),
	}
	if attrs, ok := m["attributes"]; ok {
		if am, _, ok := attrs.Mapping(); ok {
			res.Attributes = am
		}
	}
	return res
}

func encodeAnnotation(v wire.Variant) wire.Variant {
	return wire.Mapping([]string{eventAnnotation}, map[string]wire.Variant{eventAnnotation: v})
}

func encodeFilters(fs reply.FilterState) wire.Variant {
	return wire.Mapping(
		[]string{eventFilters, eventFilterState},
		map[string]wire.Variant{
			eventFilters:     fs.Filters,
			eventFilterState: fs.FilterState,
		},
	)
}

func decodeFilters(m map[string]wire.Variant) reply.FilterState {
	return reply.FilterState{
		Filters:     m[eventFilters],
		FilterState: m[eventFilterState],
	}
}

func encodePreviewData(v wire.Variant) wire.Variant {
	return wire.Mapping([]string{eventPreviewData}, map[string]wire.Variant{eventPreviewData: v})
}

func encodeWidgets(v wire.Variant) wire.Variant {
	return wire.Mapping([]string{eventWidgets}, map[string]wire.Variant{eventWidgets: v})
}

func encodeFinish(reason reply.Reason, message string) wire.Variant {
	return wire.Mapping(
		[]string{eventFinish},
		map[string]wire.Variant{
			eventFinish: wire.Mapping(
				[]string{"reason", "message"},
				map[string]wire.Variant{
					"reason":  wire.Int(int64(reason)),
					"message": wire.String(message),
				},
			),
		},
	)
}

func decodeFinish(v wire.Variant) (reply.Reason, string) {
	m, _, _ := v.Mapping()
	reason, _ := m["reason"].Int()
	return reply.Reason(reason), stringField(m, "message")
}

func stringField(m map[string]wire.Variant, key string) string {
	s, _ := m[key].String()
	return s
}

// dispatchEvent decodes one push-stream message and invokes the matching
// Receiver callback. It reports whether the message was the terminal
// finish event.
func dispatchEvent(v wire.Variant, receiver reply.Receiver) (finished bool) {
	m, keys, ok := v.Mapping()
	if !ok || len(keys) == 0 {
		return false
	}

	switch keys[0] {
	case eventCategory:
		receiver.OnCategory(decodeCategory(m[eventCategory]))
	case eventResult:
		receiver.OnResult(decodeResult(m[eventResult]))
	case eventAnnotation:
		receiver.OnAnnotation(m[eventAnnotation])
	case eventFilters:
		receiver.OnFilters(decodeFilters(m))
	case eventPreviewData:
		receiver.OnPreviewData(m[eventPreviewData])
	case eventWidgets:
		receiver.OnWidgets(m[eventWidgets])
	case eventFinish:
		reason, message := decodeFinish(m[eventFinish])
		receiver.OnFinish(reason, message)
		return true
	}
	return false
}

// WireReceiver implements reply.Receiver by encoding every callback into
// the single tagged-mapping wire event shape and forwarding it to send.
// The runtime's search handler uses this to adapt a server-side
// reply.Reply into messages pushed over a transport.Handler.Stream.
type WireReceiver struct {
	Send func(wire.Variant) error
}

func (w WireReceiver) OnCategory(cat reply.Category)        { _ = w.Send(encodeCategory(cat)) }
func (w WireReceiver) OnResult(res reply.Result)             { _ = w.Send(encodeResult(res)) }
func (w WireReceiver) OnAnnotation(v wire.Variant)           { _ = w.Send(encodeAnnotation(v)) }
func (w WireReceiver) OnFilters(fs reply.FilterState)        { _ = w.Send(encodeFilters(fs)) }
func (w WireReceiver) OnPreviewData(v wire.Variant)          { _ = w.Send(encodePreviewData(v)) }
func (w WireReceiver) OnWidgets(v wire.Variant)              { _ = w.Send(encodeWidgets(v)) }
func (w WireReceiver) OnFinish(reason reply.Reason, message string) {
	_ = w.Send(encodeFinish(reason, message))
}
