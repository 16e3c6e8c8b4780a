package one_test

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const testSession = "oneadmin:onepass"

// rpcCall is a decoded XML-RPC request. Params holds the text of each
// scalar parameter.
type rpcCall struct {
	Method    string
	Params    []string
	UserAgent string
}

// callRecorder collects the calls received by a fake endpoint.
type callRecorder struct {
	mu    sync.Mutex
	calls []rpcCall
}

func (r *callRecorder) add(call rpcCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) last() rpcCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return rpcCall{}
	}
	return r.calls[len(r.calls)-1]
}

// newRPCServer starts a fake XML-RPC endpoint. reply returns the response
// body for each decoded call.
func newRPCServer(t *testing.T, reply func(call rpcCall) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		call, err := decodeCall(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		call.UserAgent = r.UserAgent()
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, reply(call))
	}))
	t.Cleanup(server.Close)
	return server
}

func decodeCall(body []byte) (rpcCall, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return rpcCall{}, err
	}
	name := doc.FindElement("//methodName")
	if name == nil {
		return rpcCall{}, fmt.Errorf("no methodName")
	}
	call := rpcCall{Method: name.Text()}
	for _, v := range doc.FindElements("//params/param/value") {
		typed := v.ChildElements()
		if len(typed) == 0 {
			call.Params = append(call.Params, v.Text())
			continue
		}
		call.Params = append(call.Params, typed[0].Text())
	}
	return call, nil
}

// envelopeResponse encodes the 3-element API response.
func envelopeResponse(t *testing.T, ok bool, payload any, code int) string {
	t.Helper()
	flag := "0"
	if ok {
		flag = "1"
	}
	return `<?xml version="1.0"?><methodResponse><params><param><value><array><data>` +
		`<value><boolean>` + flag + `</boolean></value>` +
		encodeValue(t, payload) +
		fmt.Sprintf(`<value><i4>%d</i4></value>`, code) +
		`</data></array></value></param></params></methodResponse>`
}

func encodeValue(t *testing.T, v any) string {
	t.Helper()
	switch tv := v.(type) {
	case string:
		var buf bytes.Buffer
		require.NoError(t, xml.EscapeText(&buf, []byte(tv)))
		return "<value><string>" + buf.String() + "</string></value>"
	case int:
		return fmt.Sprintf("<value><int>%d</int></value>", tv)
	case bool:
		if tv {
			return "<value><boolean>1</boolean></value>"
		}
		return "<value><boolean>0</boolean></value>"
	default:
		t.Fatalf("unsupported payload %T", v)
		return ""
	}
}

// faultResponse encodes an XML-RPC fault.
func faultResponse(code int, message string) string {
	return `<?xml version="1.0"?><methodResponse><fault><value><struct>` +
		fmt.Sprintf(`<member><name>faultCode</name><value><int>%d</int></value></member>`, code) +
		`<member><name>faultString</name><value><string>` + message + `</string></value></member>` +
		`</struct></value></fault></methodResponse>`
}

const hostDocument = `<HOST>
    <ID>0</ID>
    <NAME>kvm-node-1</NAME>
    <STATE>2</STATE>
    <TEMPLATE>
        <ARCH><![CDATA[x86_64]]></ARCH>
        <NOTES><![CDATA[Hostname is: ESPAÑA]]></NOTES>
    </TEMPLATE>
</HOST>`
