package cdp

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeBrowser emulates the browser side of the debugging protocol: the
// /json/version and /json/list HTTP endpoints plus a browser-level WebSocket
// answering the handful of methods the wire uses.
type fakeBrowser struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	writeMu    sync.Mutex
	pages      []fakePageEntry
	evalResult string
	conns      []net.Conn
	methods    []string
}

type fakePageEntry struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{
		t:          t,
		evalResult: `{"ok":true,"data":{"status":"ok"}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(fb.srv.URL, "http") + "/devtools/browser"
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		pages := make([]fakePageEntry, len(fb.pages))
		copy(pages, fb.pages)
		fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(pages)
	})
	mux.HandleFunc("/devtools/browser", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		fb.mu.Lock()
		fb.conns = append(fb.conns, conn)
		fb.mu.Unlock()
		go fb.serve(conn)
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) setPages(pages ...fakePageEntry) {
	fb.mu.Lock()
	fb.pages = pages
	fb.mu.Unlock()
}

func (fb *fakeBrowser) setEvalResult(envelope string) {
	fb.mu.Lock()
	fb.evalResult = envelope
	fb.mu.Unlock()
}

func (fb *fakeBrowser) calls(method string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, m := range fb.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (fb *fakeBrowser) dropConnections() {
	fb.mu.Lock()
	conns := fb.conns
	fb.conns = nil
	fb.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (fb *fakeBrowser) serve(conn net.Conn) {
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}

		var msg struct {
			ID        int64 `json:"id"`
			Method    string
			SessionID string `json:"sessionId"`
			Params    json.RawMessage
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		fb.mu.Lock()
		fb.methods = append(fb.methods, msg.Method)
		fb.mu.Unlock()

		switch msg.Method {
		case "Target.attachToTarget":
			var p struct {
				TargetID string `json:"targetId"`
			}
			_ = json.Unmarshal(msg.Params, &p)
			fb.respond(conn, msg.ID, "", fmt.Sprintf(`{"sessionId":"SESS-%s"}`, p.TargetID))
		case "Target.detachFromTarget":
			fb.respond(conn, msg.ID, "", `{}`)
		case "Runtime.enable":
			fb.respond(conn, msg.ID, msg.SessionID, `{}`)
		case "Runtime.addBinding":
			fb.respond(conn, msg.ID, msg.SessionID, `{}`)
		case "Runtime.evaluate":
			fb.mu.Lock()
			envelope := fb.evalResult
			fb.mu.Unlock()
			value, _ := json.Marshal(envelope)
			fb.respond(conn, msg.ID, msg.SessionID, fmt.Sprintf(`{"result":{"type":"string","value":%s}}`, value))
		case "Input.dispatchMouseEvent":
			fb.respond(conn, msg.ID, msg.SessionID, `{}`)
		case "Page.captureScreenshot":
			fb.respond(conn, msg.ID, msg.SessionID, `{"data":"aW1hZ2U="}`)
		default:
			fb.respond(conn, msg.ID, msg.SessionID, `{}`)
		}
	}
}

func (fb *fakeBrowser) respond(conn net.Conn, id int64, sessionID, result string) {
	resp := fmt.Sprintf(`{"id":%d,"result":%s}`, id, result)
	if sessionID != "" {
		resp = fmt.Sprintf(`{"id":%d,"sessionId":%q,"result":%s}`, id, sessionID, result)
	}
	fb.writeMu.Lock()
	defer fb.writeMu.Unlock()
	if err := wsutil.WriteServerText(conn, []byte(resp)); err != nil {
		fb.t.Logf("fake browser write failed: %v", err)
	}
}

// notifyBinding pushes a Runtime.bindingCalled event on the latest connection.
func (fb *fakeBrowser) notifyBinding(sessionID, name, payload string) {
	fb.mu.Lock()
	var conn net.Conn
	if len(fb.conns) > 0 {
		conn = fb.conns[len(fb.conns)-1]
	}
	fb.mu.Unlock()
	if conn == nil {
		return
	}

	evt := fmt.Sprintf(`{"method":"Runtime.bindingCalled","sessionId":%q,"params":{"name":%q,"payload":%q}}`,
		sessionID, name, payload)
	fb.writeMu.Lock()
	defer fb.writeMu.Unlock()
	if err := wsutil.WriteServerText(conn, []byte(evt)); err != nil {
		fb.t.Logf("fake browser event write failed: %v", err)
	}
}
