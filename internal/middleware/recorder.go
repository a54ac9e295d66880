package middleware

import (
	"bytes"
	"net/http"
)

// recorder 緩衝 handler 的回應，寫入快取後再轉給客戶端
//
// singleflight 會把同一個 recorder 交給多個請求，replay 只讀不寫。
type recorder struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
}

func (r *recorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	return r.body.Write(p)
}

// replay 把緩衝的回應寫到 w
func (r *recorder) replay(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range r.header {
		dst[k] = append([]string(nil), v...)
	}
	dst.Set(CacheHeader, "MISS")
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body.Bytes())
}
