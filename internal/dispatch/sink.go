// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package dispatch

import (
	"net/http"
)

// httpSink adapts an http.ResponseWriter to cache.Sink. Status and headers
// are held back until the first body byte so that the session cookie can
// still be added.
type httpSink struct {
	w           http.ResponseWriter
	status      int
	contentType string
	encoding    string
	committed   bool
	written     int64

	// beforeCommit runs once, right before the status line is written.
	beforeCommit func()
}

func newHTTPSink(w http.ResponseWriter, beforeCommit func()) *httpSink {
	return &httpSink{w: w, beforeCommit: beforeCommit}
}

func (s *httpSink) SetStatus(code int) {
	if !s.committed {
		s.status = code
	}
}

func (s *httpSink) SetHeader(name, value string) {
	if !s.committed {
		s.w.Header().Set(name, value)
	}
}

func (s *httpSink) SetContentType(contentType string) {
	if !s.committed {
		s.contentType = contentType
	}
}

func (s *httpSink) SetCharacterEncoding(encoding string) {
	if !s.committed {
		s.encoding = encoding
	}
}

func (s *httpSink) Write(p []byte) (int, error) {
	s.commit()
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

// Committed reports whether the status line has been sent.
func (s *httpSink) Committed() bool {
	return s.committed
}

// reset drops everything set so far. It is only valid before commit.
func (s *httpSink) reset() {
	if s.committed {
		return
	}
	s.status = 0
	s.contentType = ""
	s.encoding = ""
	h := s.w.Header()
	for name := range h {
		if name != "Set-Cookie" && name != "X-Request-Id" {
			delete(h, name)
		}
	}
}

func (s *httpSink) commit() {
	if s.committed {
		return
	}
	s.committed = true

	if s.contentType != "" {
		ct := s.contentType
		if s.encoding != "" {
			ct += "; charset=" + s.encoding
		}
		s.w.Header().Set("Content-Type", ct)
	}
	if s.beforeCommit != nil {
		s.beforeCommit()
	}
	if s.status == 0 {
		s.status = http.StatusOK
	}
	s.w.WriteHeader(s.status)
}

// finish commits a response that wrote no body.
func (s *httpSink) finish() {
	s.commit()
}
