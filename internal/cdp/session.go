package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// evalEnvelope is the JSON contract every injected script returns.
type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// PageSession is a flat CDP session attached to a single page target. It is
// issued by the Manager and becomes terminally invalid when the page closes or
// the connection drops; holders must re-obtain a session after reconnection
// rather than retry on a stale one.
type PageSession struct {
	wire        *wire
	targetID    string
	evalTimeout time.Duration

	mu        sync.Mutex
	sessionID string
	unbinds   []func()
	invalid   bool
}

func (s *PageSession) TargetID() string { return s.targetID }

// Invalidate marks the session terminally dead without touching the browser.
// Used when the transport is already gone.
func (s *PageSession) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = true
	s.sessionID = ""
	for _, unbind := range s.unbinds {
		unbind()
	}
	s.unbinds = nil
}

// Detach releases the session (and any event bindings) without closing the
// page: the tab must stay usable for the human afterwards.
func (s *PageSession) Detach() {
	s.mu.Lock()
	sessionID := s.sessionID
	s.invalid = true
	s.sessionID = ""
	unbinds := s.unbinds
	s.unbinds = nil
	s.mu.Unlock()

	for _, unbind := range unbinds {
		unbind()
	}
	if sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.wire.detachFromTarget(ctx, sessionID); err != nil {
			slog.Debug("cdp session detach failed", "target_id", s.targetID, "error", err)
		}
		cancel()
	}
}

func (s *PageSession) currentSessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid || s.sessionID == "" {
		return "", newError(CodeCDPUnavailable, "page session is no longer attached", nil)
	}
	return s.sessionID, nil
}

// Eval runs an injected script and decodes its envelope into out. Scripts must
// return the stringified {ok, data, error_code, error_message} envelope.
func (s *PageSession) Eval(ctx context.Context, js string, out any) error {
	sessionID, err := s.currentSessionID()
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, s.evalTimeout)
	defer evalCancel()

	raw, err := s.wire.evaluate(evalCtx, sessionID, js)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// Click dispatches a trusted mouse click at page coordinates.
func (s *PageSession) Click(ctx context.Context, x, y float64) error {
	sessionID, err := s.currentSessionID()
	if err != nil {
		return err
	}
	if err := s.wire.dispatchMouseClick(ctx, sessionID, x, y); err != nil {
		return newError(CodeCDPUnavailable, "mouse click failed", err)
	}
	return nil
}

// Screenshot captures the visible page as JPEG bytes.
func (s *PageSession) Screenshot(ctx context.Context) ([]byte, error) {
	sessionID, err := s.currentSessionID()
	if err != nil {
		return nil, err
	}
	data, err := s.wire.captureScreenshot(ctx, sessionID, "jpeg", 70)
	if err != nil {
		return nil, newError(CodeEvalFailure, "screenshot failed", err)
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, newError(CodeEvalFailure, "screenshot decode failed", err)
	}
	return img, nil
}

// Bind exposes a window function on the page and invokes fn with its payload
// whenever the page calls it. The binding is released on Detach/Invalidate.
func (s *PageSession) Bind(ctx context.Context, name string, fn func(payload string)) error {
	sessionID, err := s.currentSessionID()
	if err != nil {
		return err
	}
	if err := s.wire.addBinding(ctx, sessionID, name); err != nil {
		return newError(CodeCDPUnavailable, "binding setup failed", err)
	}

	unbind := s.wire.registerEventHandler("Runtime.bindingCalled", func(eventSession string, params json.RawMessage) {
		if eventSession != sessionID {
			return
		}
		var ev struct {
			Name    string `json:"name"`
			Payload string `json:"payload"`
		}
		if json.Unmarshal(params, &ev) != nil || ev.Name != name {
			return
		}
		fn(ev.Payload)
	})

	s.mu.Lock()
	if s.invalid {
		s.mu.Unlock()
		unbind()
		return newError(CodeCDPUnavailable, "page session is no longer attached", nil)
	}
	s.unbinds = append(s.unbinds, unbind)
	s.mu.Unlock()
	return nil
}
