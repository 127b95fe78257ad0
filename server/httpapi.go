package server

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humachi"
	"github.com/go-chi/chi/v5"

	"knotrelay.dev/event"
	"knotrelay.dev/ingest"
	"knotrelay.dev/normalize"
)

// eventInput is the payload for POST /api/event: a raw NIP-01 EVENT JSON
// object, submitted the same way a websocket EVENT frame would be,
// grounded on the teacher's openapi.EventInput/RegisterEvent.
type eventInput struct {
	Body string `doc:"NIP-01 event JSON" required:"true"`
}

type eventOutput struct {
	Body struct {
		OK      bool   `json:"ok"`
		Message string `json:"message,omitempty"`
		EventID string `json:"id,omitempty"`
	}
}

// newHTTPAPI builds the chi router + huma operations for submitting events
// over plain HTTP, a capability-discovery surface alongside the websocket
// protocol rather than a replacement for it.
func newHTTPAPI(s *Server) chi.Router {
	r := chi.NewRouter()
	cfg := huma.DefaultConfig("knotrelay", "0.1.0")
	cfg.Info.Description = "HTTP companion API to the websocket relay protocol"
	api := humachi.New(r, cfg)

	huma.Register(api, huma.Operation{
		OperationID: "submit-event",
		Method:      "POST",
		Path:        "/api/event",
		Summary:     "Submit an event",
		Tags:        []string{"events"},
	}, func(ctx context.Context, in *eventInput) (out *eventOutput, err error) {
		out = &eventOutput{}
		ev, reason, verr := event.Validate([]byte(in.Body))
		if verr != nil {
			out.Body.OK = false
			out.Body.Message = string(normalize.Invalid.F("%s: %v", reason, verr))
			return out, nil
		}
		reply := make(chan ingest.Result, 1)
		if !s.pipeline.Submit(&ingest.Submission{Event: ev, Reply: reply}) {
			out.Body.OK = false
			out.Body.Message = string(normalize.RateLimited.F("ingest queue is full, try again shortly"))
			out.Body.EventID = hexID(ev)
			return out, nil
		}
		res := <-reply
		out.Body.OK = res.OK
		out.Body.Message = string(res.Message)
		out.Body.EventID = hexID(ev)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "relay-info",
		Method:      "GET",
		Path:        "/api/info",
		Summary:     "Relay information document",
		Tags:        []string{"meta"},
	}, func(ctx context.Context, in *struct{}) (out *struct{ Body json.RawMessage }, err error) {
		out = &struct{ Body json.RawMessage }{}
		b, merr := json.Marshal(relayInfo{
			Name: s.cfg.AppName, SupportedNIPs: supportedNIPs,
		})
		if merr != nil {
			return nil, merr
		}
		out.Body = b
		return out, nil
	})

	return r
}

func hexID(ev *event.E) string {
	if ev == nil {
		return ""
	}
	return hex.EncodeToString(ev.Id)
}
