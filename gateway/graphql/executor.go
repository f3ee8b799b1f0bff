package graphql

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/c360/botapi/errors"
	"github.com/c360/botapi/registry"
)

// Request is a standard GraphQL POST body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// Response is the GraphQL execution result.
type Response struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors,omitempty"`
}

// Executor validates queries against the schema and resolves them
// directly over the registry.
type Executor struct {
	schema   *ast.Schema
	registry *registry.Registry
	logger   *slog.Logger
}

// NewExecutor parses the schema and builds an executor.
func NewExecutor(reg *registry.Registry, logger *slog.Logger) (*Executor, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{schema: schema, registry: reg, logger: logger}, nil
}

// Execute runs a single GraphQL request.
func (e *Executor) Execute(ctx context.Context, req Request) *Response {
	doc, listErr := gqlparser.LoadQuery(e.schema, req.Query)
	if len(listErr) > 0 {
		return &Response{Errors: listErr}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return &Response{Errors: gqlerror.List{
			gqlerror.Errorf("operation %q not found", req.OperationName),
		}}
	}

	vars, varErr := validator.VariableValues(e.schema, op, req.Variables)
	if varErr != nil {
		return &Response{Errors: gqlerror.List{gqlerror.WrapPath(nil, varErr)}}
	}

	switch op.Operation {
	case ast.Query, ast.Mutation:
		return e.execSelections(ctx, op, doc.Fragments, vars)
	default:
		return &Response{Errors: gqlerror.List{
			gqlerror.Errorf("%s operations are not supported", op.Operation),
		}}
	}
}

func (e *Executor) execSelections(ctx context.Context, op *ast.OperationDefinition,
	fragments ast.FragmentDefinitionList, vars map[string]any) *Response {

	resp := &Response{Data: make(map[string]any)}

	for _, field := range collectFields(op.SelectionSet, fragments) {
		key := field.Alias
		if key == "" {
			key = field.Name
		}

		if field.Name == "__typename" {
			if op.Operation == ast.Mutation {
				resp.Data[key] = "Mutation"
			} else {
				resp.Data[key] = "Query"
			}
			continue
		}

		value, err := e.resolveRoot(ctx, op.Operation, field, fragments, vars)
		if err != nil {
			e.logger.Error("graphql field failed", "field", field.Name, "error", err)
			resp.Errors = append(resp.Errors, mapError(err, field.Name))
			resp.Data[key] = nil
			continue
		}
		resp.Data[key] = value
	}
	return resp
}

func (e *Executor) resolveRoot(ctx context.Context, opType ast.Operation, field *ast.Field,
	fragments ast.FragmentDefinitionList, vars map[string]any) (any, error) {

	args := field.ArgumentMap(vars)

	if opType == ast.Mutation {
		switch field.Name {
		case "createUser":
			return e.resolveCreateUser(ctx, field, fragments, args, vars)
		case "setUserName":
			return e.resolveSetUserName(ctx, field, fragments, args, vars)
		case "sendMessage":
			return e.resolveSendMessage(ctx, field, fragments, args, vars)
		}
		return nil, gqlerror.Errorf("unknown mutation %q", field.Name)
	}

	switch field.Name {
	case "user":
		id, _ := args["id"].(string)
		user, err := e.registry.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.renderUser(ctx, user, field.SelectionSet, fragments, vars)
	case "users":
		users, err := e.registry.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		users = filterUsers(users, args)
		out := make([]any, 0, len(users))
		for _, user := range users {
			rendered, err := e.renderUser(ctx, user, field.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			out = append(out, rendered)
		}
		return out, nil
	case "messages":
		userID, _ := args["userId"].(string)
		msgs, err := e.registry.ListMessages(ctx, userID)
		if err != nil {
			return nil, err
		}
		return e.renderMessages(ctx, userID, msgs, field.SelectionSet, fragments, vars)
	}
	return nil, gqlerror.Errorf("unknown query %q", field.Name)
}

func (e *Executor) resolveCreateUser(ctx context.Context, field *ast.Field,
	fragments ast.FragmentDefinitionList, args, vars map[string]any) (any, error) {

	input, _ := args["input"].(map[string]any)
	id, _ := input["id"].(string)
	name, _ := input["name"].(string)

	user, err := e.registry.CreateUser(ctx, id, name)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any)
	for _, sub := range collectFields(field.SelectionSet, fragments) {
		key := sub.Alias
		if key == "" {
			key = sub.Name
		}
		switch sub.Name {
		case "__typename":
			payload[key] = "CreateUserPayload"
		case "user":
			rendered, err := e.renderUser(ctx, user, sub.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			payload[key] = rendered
		}
	}
	return payload, nil
}

func (e *Executor) resolveSetUserName(ctx context.Context, field *ast.Field,
	fragments ast.FragmentDefinitionList, args, vars map[string]any) (any, error) {

	input, _ := args["input"].(map[string]any)
	id, _ := input["id"].(string)
	name, _ := input["name"].(string)

	if err := e.registry.SetUserName(ctx, id, name); err != nil {
		return nil, err
	}
	user, err := e.registry.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any)
	for _, sub := range collectFields(field.SelectionSet, fragments) {
		key := sub.Alias
		if key == "" {
			key = sub.Name
		}
		switch sub.Name {
		case "__typename":
			payload[key] = "SetUserNamePayload"
		case "user":
			rendered, err := e.renderUser(ctx, user, sub.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			payload[key] = rendered
		}
	}
	return payload, nil
}

func (e *Executor) resolveSendMessage(ctx context.Context, field *ast.Field,
	fragments ast.FragmentDefinitionList, args, vars map[string]any) (any, error) {

	input, _ := args["input"].(map[string]any)
	userID, _ := input["userId"].(string)
	content, _ := input["content"].(string)

	msg, response, err := e.registry.SendMessage(ctx, userID, content)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any)
	for _, sub := range collectFields(field.SelectionSet, fragments) {
		key := sub.Alias
		if key == "" {
			key = sub.Name
		}
		switch sub.Name {
		case "__typename":
			payload[key] = "SendMessagePayload"
		case "user":
			user, err := e.registry.GetUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			rendered, err := e.renderUser(ctx, user, sub.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			payload[key] = rendered
		case "message":
			rendered, err := e.renderMessage(ctx, userID, msg, sub.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			payload[key] = rendered
		case "response":
			if response == nil {
				payload[key] = nil
				continue
			}
			rendered, err := e.renderMessage(ctx, userID, response, sub.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			payload[key] = rendered
		}
	}
	return payload, nil
}

func (e *Executor) renderUser(ctx context.Context, user *registry.User,
	sel ast.SelectionSet, fragments ast.FragmentDefinitionList, vars map[string]any) (map[string]any, error) {

	out := make(map[string]any)
	for _, field := range collectFields(sel, fragments) {
		key := field.Alias
		if key == "" {
			key = field.Name
		}
		switch field.Name {
		case "__typename":
			out[key] = "User"
		case "id":
			out[key] = user.ID
		case "name":
			out[key] = user.Name
		case "created":
			out[key] = user.Created.Format(registry.TimeFormat)
		case "messages":
			msgs, err := e.registry.ListMessages(ctx, user.ID)
			if err != nil {
				return nil, err
			}
			msgs, err = filterMessages(msgs, field.ArgumentMap(vars))
			if err != nil {
				return nil, err
			}
			rendered, err := e.renderMessages(ctx, user.ID, msgs, field.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			out[key] = rendered
		}
	}
	return out, nil
}

func (e *Executor) renderMessages(ctx context.Context, userID string, msgs []*registry.Message,
	sel ast.SelectionSet, fragments ast.FragmentDefinitionList, vars map[string]any) ([]any, error) {

	out := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		rendered, err := e.renderMessage(ctx, userID, msg, sel, fragments, vars)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

func (e *Executor) renderMessage(ctx context.Context, userID string, msg *registry.Message,
	sel ast.SelectionSet, fragments ast.FragmentDefinitionList, vars map[string]any) (map[string]any, error) {

	out := make(map[string]any)
	for _, field := range collectFields(sel, fragments) {
		key := field.Alias
		if key == "" {
			key = field.Name
		}
		switch field.Name {
		case "__typename":
			out[key] = "Message"
		case "id":
			out[key] = msg.ID
		case "origin":
			out[key] = string(msg.Origin)
		case "content":
			out[key] = msg.Content
		case "time":
			out[key] = msg.Time
		case "user":
			user, err := e.registry.GetUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			rendered, err := e.renderUser(ctx, user, field.SelectionSet, fragments, vars)
			if err != nil {
				return nil, err
			}
			out[key] = rendered
		}
	}
	return out, nil
}

// filterUsers applies the users query arguments.
func filterUsers(users []*registry.User, args map[string]any) []*registry.User {
	id, _ := args["id"].(string)
	name, _ := args["name"].(string)
	if id == "" && name == "" {
		return users
	}

	out := make([]*registry.User, 0, len(users))
	for _, u := range users {
		if id != "" && u.ID != id {
			continue
		}
		if name != "" && u.Name != name {
			continue
		}
		out = append(out, u)
	}
	return out
}

// filterMessages applies the User.messages filter arguments. The
// after/before bounds are inclusive. Time comparisons are lexicographic,
// which matches chronological order for the wire format. The pattern
// argument matches at the start of the content, like Python's re.match
// in the service this schema descends from.
func filterMessages(msgs []*registry.Message, args map[string]any) ([]*registry.Message, error) {
	id, _ := args["id"].(string)
	origin, _ := args["origin"].(string)
	content, _ := args["content"].(string)
	timeArg, _ := args["time"].(string)
	after, _ := args["after"].(string)
	before, _ := args["before"].(string)
	pattern, _ := args["pattern"].(string)
	if id == "" && origin == "" && content == "" && timeArg == "" &&
		after == "" && before == "" && pattern == "" {
		return msgs, nil
	}

	var re *regexp.Regexp
	if pattern != "" {
		compiled, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			return nil, errors.WrapInvalid(err, "graphql", "filterMessages", "compile pattern")
		}
		re = compiled
	}

	out := make([]*registry.Message, 0, len(msgs))
	for _, m := range msgs {
		if id != "" && m.ID != id {
			continue
		}
		if origin != "" && string(m.Origin) != origin {
			continue
		}
		if content != "" && m.Content != content {
			continue
		}
		if timeArg != "" && m.Time != timeArg {
			continue
		}
		if after != "" && m.Time < after {
			continue
		}
		if before != "" && m.Time > before {
			continue
		}
		if re != nil && !re.MatchString(m.Content) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// collectFields flattens a selection set, expanding fragment spreads
// and inline fragments. Type conditions are not checked; the schema has
// no interfaces or unions.
func collectFields(sel ast.SelectionSet, fragments ast.FragmentDefinitionList) []*ast.Field {
	var fields []*ast.Field
	for _, s := range sel {
		switch sel := s.(type) {
		case *ast.Field:
			fields = append(fields, sel)
		case *ast.InlineFragment:
			fields = append(fields, collectFields(sel.SelectionSet, fragments)...)
		case *ast.FragmentSpread:
			if frag := fragments.ForName(sel.Name); frag != nil {
				fields = append(fields, collectFields(frag.SelectionSet, fragments)...)
			}
		}
	}
	return fields
}
