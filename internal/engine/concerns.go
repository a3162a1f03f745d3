package engine

import (
	"log/slog"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/schema"
)

// Concern decorates a value property accessor. It receives the composite
// hosting the property, the property, and the next accessor in the chain,
// and returns the accessor to use instead.
//
// Concerns are configured per type and property with WithConcern.
type Concern func(host *Composite, p *schema.Property, next Property) Property

// PropertyChange describes a value property update.
type PropertyChange struct {
	EntityType string
	EntityID   string
	Type       string
	Property   string
	Old        ir.IRValue
	New        ir.IRValue
}

// ChangeEvents calls listener after every successful Set that changes the
// property's value.
func ChangeEvents(listener func(PropertyChange)) Concern {
	return func(host *Composite, p *schema.Property, next Property) Property {
		return &changeEvents{host: host, p: p, next: next, listener: listener}
	}
}

type changeEvents struct {
	host     *Composite
	p        *schema.Property
	next     Property
	listener func(PropertyChange)
}

func (c *changeEvents) Get() (ir.IRValue, error) {
	return c.next.Get()
}

func (c *changeEvents) Set(v ir.IRValue) error {
	old, err := c.next.Get()
	if err != nil {
		return err
	}
	if err := c.next.Set(v); err != nil {
		return err
	}
	if ir.Equal(old, v) {
		return nil
	}
	owner := c.host.owner
	c.listener(PropertyChange{
		EntityType: owner.typ.Name,
		EntityID:   owner.ID(),
		Type:       c.host.typ.Name,
		Property:   c.p.Name,
		Old:        old,
		New:        ir.Clone(v),
	})
	return nil
}

// LogChanges logs every Set at debug level.
func LogChanges(logger *slog.Logger) Concern {
	return func(host *Composite, p *schema.Property, next Property) Property {
		return &logChanges{host: host, p: p, next: next, logger: logger}
	}
}

type logChanges struct {
	host   *Composite
	p      *schema.Property
	next   Property
	logger *slog.Logger
}

func (l *logChanges) Get() (ir.IRValue, error) {
	return l.next.Get()
}

func (l *logChanges) Set(v ir.IRValue) error {
	err := l.next.Set(v)
	l.logger.Debug("property set",
		"entity", l.host.owner.String(),
		"property", l.host.typ.Name+"."+l.p.Name,
		"value", ir.String(v),
		"error", err)
	return err
}
