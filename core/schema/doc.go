/*
Package schema shapes and validates documents against declarative field rules.

A Definition maps field names to FieldRules. New derives one validation rule
per attribute present on each field, once, at construction:

	users := schema.New(schema.Definition{
		"id":    {Required: true},
		"name":  {Required: true},
		"roles": {Enum: []any{"ADMIN", "MODERATOR"}},
		"color": {Default: schema.Literal("blue")},
	})

# Assign

Assign copies declared fields from an input document onto a target. Fields
missing from the input receive their default, if one is declared.
Undeclared input keys never reach the target:

	doc := schema.Document{}
	users.Assign(doc, schema.Document{"id": "1", "name": "A", "extra": "x"})
	// doc == {id: "1", name: "A", color: "blue"}

Defaults are either literals, copied as-is, or generators, called on every
Assign:

	"token": {Default: schema.Generator(func() any { return uuid.NewString() })}

# Validate

Validate runs every derived rule and reports all failures at once:

	_, err := users.Validate(ctx, schema.Document{"roles": "CAPTAIN"})
	// err is a *ValidationError with failures
	//   id: required, name: required, roles: enum

A required rule fails on absent or nil values. An enum rule fails on a
present value outside the allowed set; absent values pass it.

# YAML definitions

Models can be declared in YAML and parsed with Parse, ParseFile or ParseDir:

	model: User
	fields:
	  id:    { required: true }
	  name:  { required: true }
	  roles: { enum: [ADMIN, MODERATOR] }
	  color: { default: blue }
	  token: { generate: uuid }

Generator names resolve against the Generators passed to Module.Engine.
*/
package schema
