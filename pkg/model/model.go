package model

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// PropertyType enumerates the property types an entity may declare.
type PropertyType string

const (
	TypeString PropertyType = "string"
	TypeInt    PropertyType = "int"
	TypeFloat  PropertyType = "float"
	TypeBool   PropertyType = "bool"
	TypeTime   PropertyType = "time"
	TypeBytes  PropertyType = "bytes"
)

// Model is the parsed form of a model description file. It declares the
// entity types a store manages and is consumed as an opaque input by the
// persistence engine, which derives the store schema from it.
type Model struct {
	// Name identifies the model in the store catalog.
	Name string `yaml:"name" validate:"required,identifier"`

	// Version is the model revision recorded alongside the store.
	Version int `yaml:"version" validate:"gte=1"`

	// Entities lists the entity types. At least one is required.
	Entities []Entity `yaml:"entities" validate:"required,min=1,dive"`
}

// Entity declares one entity type and its properties.
type Entity struct {
	Name string `yaml:"name" validate:"required,identifier"`

	Properties []Property `yaml:"properties" validate:"required,min=1,dive"`
}

// Property declares a single typed attribute of an entity.
type Property struct {
	Name string `yaml:"name" validate:"required,identifier"`

	Type PropertyType `yaml:"type" validate:"required,oneof=string int float bool time bytes"`

	// Indexed requests a secondary index on this property.
	Indexed bool `yaml:"indexed"`
}

// Entity names and property names become SQL identifiers, so they are
// restricted to a conservative character set.
var identifierRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierRe.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks the model against its declared constraints and rejects
// duplicate entity or property names.
func (m *Model) Validate() error {
	if err := newValidator().Struct(m); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}

	seen := make(map[string]struct{}, len(m.Entities))
	for _, e := range m.Entities {
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("duplicate entity %q", e.Name)
		}
		seen[e.Name] = struct{}{}

		props := make(map[string]struct{}, len(e.Properties))
		for _, p := range e.Properties {
			if _, ok := props[p.Name]; ok {
				return fmt.Errorf("duplicate property %q on entity %q", p.Name, e.Name)
			}
			if p.Name == "id" {
				return fmt.Errorf("entity %q: property name %q is reserved", e.Name, p.Name)
			}
			props[p.Name] = struct{}{}
		}
	}

	return nil
}

// Entity returns the declaration for the named entity type, or nil if the
// model does not declare it.
func (m *Model) Entity(name string) *Entity {
	for i := range m.Entities {
		if m.Entities[i].Name == name {
			return &m.Entities[i]
		}
	}
	return nil
}

// Property returns the declaration for the named property, or nil.
func (e *Entity) Property(name string) *Property {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i]
		}
	}
	return nil
}
