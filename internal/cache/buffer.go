// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrNotFrozen is the panic value of Buffer.Replay before Done, and the
	// error Cache.Populate returns for an unfinished buffer.
	ErrNotFrozen = errors.New("cache: empty cached response, Done was not called before replay")

	// ErrFrozen is returned by writes to a buffer after Done.
	ErrFrozen = errors.New("cache: write to a frozen response buffer")
)

// Sink is the outbound side of a response: status, headers and body bytes.
// The dispatcher adapts http.ResponseWriter to it and Buffer records into it.
type Sink interface {
	SetStatus(code int)
	SetHeader(name, value string)
	SetContentType(contentType string)
	SetCharacterEncoding(encoding string)
	Write(p []byte) (int, error)
}

// Buffer records a response so it can be replayed byte for byte to any
// number of clients. It is mutable until Done and immutable afterwards.
//
// A Buffer is filled by one goroutine; once frozen it may be replayed
// concurrently.
type Buffer struct {
	status      int
	contentType string
	encoding    string
	headers     map[string]string
	body        bytes.Buffer
	frozen      atomic.Bool
}

// NewBuffer returns an empty, writable buffer.
func NewBuffer() *Buffer {
	return &Buffer{headers: make(map[string]string)}
}

// SetStatus records the status code. Zero leaves the transport default.
func (b *Buffer) SetStatus(code int) {
	if b.frozen.Load() {
		return
	}
	b.status = code
}

// SetHeader sets a header, replacing any earlier value for the same name.
// Names are canonicalised the way net/http does.
func (b *Buffer) SetHeader(name, value string) {
	if b.frozen.Load() {
		return
	}
	b.headers[textproto.CanonicalMIMEHeaderKey(name)] = value
}

func (b *Buffer) SetContentType(contentType string) {
	if b.frozen.Load() {
		return
	}
	b.contentType = contentType
}

func (b *Buffer) SetCharacterEncoding(encoding string) {
	if b.frozen.Load() {
		return
	}
	b.encoding = encoding
}

// Write appends to the body. It fails with ErrFrozen after Done.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.frozen.Load() {
		return 0, ErrFrozen
	}
	return b.body.Write(p)
}

// WriteString appends s to the body.
func (b *Buffer) WriteString(s string) (int, error) {
	if b.frozen.Load() {
		return 0, ErrFrozen
	}
	return b.body.WriteString(s)
}

// Done freezes the buffer. Further calls are no-ops.
func (b *Buffer) Done() {
	b.frozen.Store(true)
}

// Frozen reports whether Done has been called.
func (b *Buffer) Frozen() bool {
	return b.frozen.Load()
}

// Status returns the recorded status code, 0 if none was set.
func (b *Buffer) Status() int { return b.status }

// ContentType returns the recorded content type.
func (b *Buffer) ContentType() string { return b.contentType }

// Header returns the recorded value of a header.
func (b *Buffer) Header(name string) string {
	return b.headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// Size returns the body length in bytes as stored.
func (b *Buffer) Size() int { return b.body.Len() }

// Body returns a copy of the stored body.
func (b *Buffer) Body() []byte {
	return bytes.Clone(b.body.Bytes())
}

// Gzipped reports whether the stored body is gzip encoded.
func (b *Buffer) Gzipped() bool {
	return strings.EqualFold(b.headers["Content-Encoding"], "gzip")
}

// Replay writes the frozen response to sink: status, content type, character
// encoding, headers in name order, then the body. A gzip encoded body is
// passed through untouched to clients that accept gzip and decompressed for
// those that do not.
//
// Replay panics with ErrNotFrozen if Done has not been called.
func (b *Buffer) Replay(acceptsGzip bool, sink Sink) error {
	if !b.frozen.Load() {
		panic(ErrNotFrozen)
	}

	inflate := b.Gzipped() && !acceptsGzip

	if b.status != 0 {
		sink.SetStatus(b.status)
	}
	if b.contentType != "" {
		sink.SetContentType(b.contentType)
	}
	if b.encoding != "" {
		sink.SetCharacterEncoding(b.encoding)
	}

	names := make([]string, 0, len(b.headers))
	for name := range b.headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if inflate && (name == "Content-Encoding" || name == "Content-Length") {
			continue
		}
		sink.SetHeader(name, b.headers[name])
	}

	if !inflate {
		_, err := sink.Write(b.body.Bytes())
		return err
	}

	zr, err := gzip.NewReader(bytes.NewReader(b.body.Bytes()))
	if err != nil {
		return fmt.Errorf("cache: open gzip body: %w", err)
	}
	defer zr.Close()
	if _, err := io.Copy(sink, zr); err != nil {
		return fmt.Errorf("cache: inflate body: %w", err)
	}
	return nil
}
