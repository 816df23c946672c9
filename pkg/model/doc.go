// Package model loads and validates model description files: YAML
// documents declaring the entity types and typed properties a store
// manages. The persistence engine derives its schema from a Model.
package model
