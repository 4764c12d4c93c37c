package mariadb

import (
	"github.com/stokaro/tenantopts/core/platform"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects/mysqllike"
)

var (
	_ renderer.Renderer = (*Renderer)(nil)
)

// Renderer provides MariaDB-specific SQL rendering
type Renderer struct {
	r *mysqllike.Renderer
}

// New creates a new MariaDB renderer
func New() *Renderer {
	return &Renderer{
		r: mysqllike.New(platform.MariaDB, mysqllike.Options{FunctionalIndexes: false, GeneratedStorage: "PERSISTENT"}),
	}
}

func (r *Renderer) Dialect() string {
	return r.r.Dialect()
}

func (r *Renderer) MaxIdentifierLength() int {
	return r.r.MaxIdentifierLength()
}

func (r *Renderer) TriggerNameLimit() int {
	return r.r.TriggerNameLimit()
}

func (r *Renderer) QuoteIdentifier(name string) string {
	return r.r.QuoteIdentifier(name)
}

func (r *Renderer) TriggerNames(tc renderer.TriggerContext) []string {
	return r.r.TriggerNames(tc)
}

// CreateTrigger renders one trigger per event, since MariaDB triggers cannot fire on both
func (r *Renderer) CreateTrigger(tc renderer.TriggerContext) []string {
	return r.r.CreateTrigger(tc)
}

func (r *Renderer) DropTrigger(tc renderer.TriggerContext) []string {
	return r.r.DropTrigger(tc)
}

func (r *Renderer) CreateTables(tc renderer.TableContext) []string {
	return r.r.CreateTables(tc)
}

func (r *Renderer) DropTables(tc renderer.TableContext) []string {
	return r.r.DropTables(tc)
}
