package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var ErrStatus = errors.New("unexpected status")

type Options struct {
	Proxy string // http proxy used for http and ws sources
}

// Open returns a reader for a local path, an http(s) url or a ws(s) url.
// Local files are returned as *os.File so callers can seek past media data.
func Open(ctx context.Context, target string, opt Options) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return OpenHTTP(ctx, target, opt)
	case strings.HasPrefix(target, "ws://"), strings.HasPrefix(target, "wss://"):
		return OpenWebSocket(ctx, target, opt)
	default:
		return os.Open(target)
	}
}

func proxyFunc(opt Options) (func(*http.Request) (*url.URL, error), error) {
	if opt.Proxy == "" {
		return http.ProxyFromEnvironment, nil
	}
	proxy, err := url.Parse(opt.Proxy)
	if err != nil {
		return nil, err
	}
	return http.ProxyURL(proxy), nil
}

func OpenHTTP(ctx context.Context, target string, opt Options) (io.ReadCloser, error) {
	client := http.DefaultClient
	if opt.Proxy != "" {
		proxy, err := proxyFunc(opt)
		if err != nil {
			return nil, err
		}
		client = &http.Client{Transport: &http.Transport{Proxy: proxy}}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("%w %d: %s", ErrStatus, res.StatusCode, target)
	}
	return res.Body, nil
}

func OpenWebSocket(ctx context.Context, target string, opt Options) (io.ReadCloser, error) {
	dialer := *websocket.DefaultDialer
	proxy, err := proxyFunc(opt)
	if err != nil {
		return nil, err
	}
	dialer.Proxy = proxy
	conn, res, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("%w %d: %s", ErrStatus, res.StatusCode, target)
		}
		return nil, err
	}
	return &wsReader{conn: conn}, nil
}

// wsReader concatenates the binary messages of a websocket connection.
// A normal close from the peer ends the stream.
type wsReader struct {
	conn *websocket.Conn
	cur  io.Reader
}

func (r *wsReader) Read(p []byte) (n int, err error) {
	for {
		if r.cur == nil {
			var mt int
			mt, r.cur, err = r.conn.NextReader()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			} else if err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				r.cur = nil
				continue
			}
		}
		n, err = r.cur.Read(p)
		if err == io.EOF {
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return
	}
}

func (r *wsReader) Close() error {
	r.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return r.conn.Close()
}
