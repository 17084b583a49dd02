package devserver

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const scriptTag = `<script src="` + scriptPath + `"></script>`

// maxInjectSize bounds how much of an HTML response is buffered; larger
// pages are sent unmodified.
const maxInjectSize = 2 << 20

// clientScript reloads the page on "reload" and re-fetches stylesheets on
// "css". It reconnects after errors.
const clientScript = `(() => {
  if (window.__ASSETBUILDER_LR__) return;
  window.__ASSETBUILDER_LR__ = true;
  function refreshStyles() {
    document.querySelectorAll('link[rel="stylesheet"]').forEach((link) => {
      const url = new URL(link.href, location.href);
      url.searchParams.set('livereload', Date.now().toString());
      link.href = url.toString();
    });
  }
  function connect() {
    const es = new EventSource('` + eventsPath + `');
    es.onmessage = (e) => {
      try {
        const msg = JSON.parse(e.data);
        if (msg.type === 'css') { refreshStyles(); return; }
        if (msg.type === 'reload') { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`

// injectScript inserts tag before the last </body> end tag. Documents
// without one get the tag appended.
func injectScript(doc []byte, tag string) []byte {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset, at := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				at = offset
			}
		}
		offset += raw
	}

	out := make([]byte, 0, len(doc)+len(tag))
	if at < 0 {
		out = append(out, doc...)
		return append(out, tag...)
	}
	out = append(out, doc[:at]...)
	out = append(out, tag...)
	return append(out, doc[at:]...)
}

// injector buffers successful HTML responses so the client script can be
// added. Everything else passes straight through.
type injector struct {
	http.ResponseWriter
	status      int
	buf         bytes.Buffer
	decided     bool
	passthrough bool
}

func (i *injector) WriteHeader(code int) {
	if i.decided {
		return
	}
	i.decided = true
	i.status = code
	ct := i.Header().Get("Content-Type")
	i.passthrough = code != http.StatusOK || !strings.HasPrefix(ct, "text/html")
	if i.passthrough {
		i.ResponseWriter.WriteHeader(code)
	}
}

func (i *injector) Write(p []byte) (int, error) {
	if !i.decided {
		i.WriteHeader(http.StatusOK)
	}
	if i.passthrough {
		return i.ResponseWriter.Write(p)
	}
	if i.buf.Len()+len(p) > maxInjectSize {
		i.passthrough = true
		i.ResponseWriter.WriteHeader(i.status)
		if _, err := i.ResponseWriter.Write(i.buf.Bytes()); err != nil {
			return 0, err
		}
		i.buf.Reset()
		return i.ResponseWriter.Write(p)
	}
	return i.buf.Write(p)
}

// finish writes the buffered page with the script injected.
func (i *injector) finish() {
	if !i.decided || i.passthrough {
		return
	}
	body := injectScript(i.buf.Bytes(), scriptTag)
	i.Header().Set("Content-Length", strconv.Itoa(len(body)))
	i.ResponseWriter.WriteHeader(i.status)
	_, _ = i.ResponseWriter.Write(body)
}
