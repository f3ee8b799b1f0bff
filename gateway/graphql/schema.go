// Package graphql exposes the registry through a hand-driven GraphQL
// executor. The schema is plain SDL parsed with gqlparser; no code
// generation is involved.
package graphql

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/c360/botapi/errors"
)

// schemaSDL is the API schema. User.messages carries the filter
// arguments from the original schema.
const schemaSDL = `
type Query {
  user(id: ID!): User
  users(id: ID, name: String): [User!]!
  messages(userId: ID!): [Message!]!
}

type Mutation {
  createUser(input: CreateUserInput!): CreateUserPayload!
  setUserName(input: SetUserNameInput!): SetUserNamePayload!
  sendMessage(input: SendMessageInput!): SendMessagePayload!
}

type User {
  id: ID!
  name: String!
  created: String!
  messages(id: ID, origin: String, content: String, time: String,
           after: String, before: String, pattern: String): [Message!]!
}

type Message {
  id: ID!
  origin: String!
  content: String!
  time: String!
  user: User!
}

input CreateUserInput {
  id: ID
  name: String
}

input SendMessageInput {
  userId: ID!
  content: String!
}

input SetUserNameInput {
  id: ID!
  name: String!
}

type CreateUserPayload {
  user: User!
}

type SetUserNamePayload {
  user: User!
}

type SendMessagePayload {
  user: User!
  message: Message!
  response: Message
}
`

// loadSchema parses the SDL into an executable schema.
func loadSchema() (*ast.Schema, error) {
	source := &ast.Source{
		Name:  "botapi.graphql",
		Input: schemaSDL,
	}

	schema, gqlErr := gqlparser.LoadSchema(source)
	if gqlErr != nil {
		return nil, errors.WrapFatal(gqlErr, "graphql", "loadSchema", "parse schema")
	}
	return schema, nil
}
