// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package modules

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/module"
)

// languages lists the supported greetings. A language's cache tag is its
// index plus one, so the order must only ever be appended to.
var languages = []struct {
	code     string
	greeting string
}{
	{"en", "Welcome"},
	{"de", "Willkommen"},
	{"fr", "Bienvenue"},
	{"es", "Bienvenido"},
	{"nl", "Welkom"},
}

// MetaInfo is the body served by the meta module.
type MetaInfo struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	Lang          string    `json:"lang"`
	Greeting      string    `json:"greeting"`
	SchemaVersion int       `json:"schema_version,omitempty"`
	Modules       []string  `json:"modules"`
}

// Meta serves static server metadata. Its output only depends on the lang
// parameter, so it is cached per language once the module has loaded.
type Meta struct {
	module.Base
	info   Info
	db     *database.DB
	logger zerolog.Logger

	loaded atomic.Bool
	schema atomic.Int64
}

// NewMeta returns the meta module.
func NewMeta(host module.Host, info Info) *Meta {
	if info.Name == "" {
		info.Name = "scuttle"
	}
	return &Meta{info: info, db: host.DB, logger: host.Logger}
}

// Loaded records the database schema version. Until it has run, responses
// are not cached.
func (m *Meta) Loaded(ctx context.Context) error {
	if m.db != nil {
		v, err := m.db.SchemaVersion(ctx)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		m.schema.Store(int64(v))
	}
	m.loaded.Store(true)
	m.logger.Debug().Int64("schema_version", m.schema.Load()).Msg("Meta module ready")
	return nil
}

func (m *Meta) CacheTag(r *module.Request) int64 {
	if r.Method != module.MethodGet || !m.loaded.Load() {
		return 0
	}
	idx, _ := language(r.Param("lang"))
	return int64(idx) + 1
}

func (m *Meta) Handle(r *module.Request) (module.Response, error) {
	if r.Method != module.MethodGet {
		return nil, nil
	}
	idx, _ := language(r.Param("lang"))
	mounts := []string{}
	if m.info.Mounts != nil {
		mounts = m.info.Mounts()
	}
	return module.JSON(MetaInfo{
		Name:          m.info.Name,
		Version:       m.info.Version,
		StartedAt:     m.info.StartedAt.UTC(),
		Lang:          languages[idx].code,
		Greeting:      languages[idx].greeting,
		SchemaVersion: int(m.schema.Load()),
		Modules:       mounts,
	}), nil
}

// language maps an Accept-Language style value ("de-AT", "FR") to a
// supported language. Unknown values fall back to the first entry.
func language(lang string) (int, bool) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	for i, l := range languages {
		if l.code == lang {
			return i, true
		}
	}
	return 0, false
}
