package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/jrsteele09/go-session-auth/guard"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

const (
	fieldProfile = "profile"
	fieldUsers   = "users"
)

type graphQLSessionKey struct{}

// GraphQLRequest is the POST body of a GraphQL call.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// graphQLError carries the mapped code into errors[].extensions.
type graphQLError struct {
	err  error
	code string
}

func (e *graphQLError) Error() string {
	return e.err.Error()
}

func (e *graphQLError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

func newGraphQLError(err error) error {
	code := graphQLCode(err)
	if code == "INTERNAL_SERVER_ERROR" {
		return &graphQLError{err: errors.New(internalErrorMsg), code: code}
	}
	return &graphQLError{err: errors.New(publicMessage(err)), code: code}
}

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id":               &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"email":            &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"username":         &graphql.Field{Type: graphql.String},
		"name":             &graphql.Field{Type: graphql.String},
		"isActive":         &graphql.Field{Type: graphql.Boolean},
		"isVerified":       &graphql.Field{Type: graphql.Boolean},
		"twoFactorEnabled": &graphql.Field{Type: graphql.Boolean},
		"roles": &graphql.Field{
			Type: graphql.NewList(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*users.User).Roles.Strings(), nil
			},
		},
		"createdAt": &graphql.Field{
			Type: graphql.DateTime,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*users.User).CreatedAt, nil
			},
		},
		"lastLoginAt": &graphql.Field{
			Type: graphql.DateTime,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if t := p.Source.(*users.User).LastLoginAt; t != nil {
					return *t, nil
				}
				return nil, nil
			},
		},
	},
})

// newGraphQLSchema builds the schema. Every field resolver runs the same
// guards as the REST routes, keyed by guard.GraphQLRoute(field).
func (s *Server) newGraphQLSchema() (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			fieldProfile: &graphql.Field{
				Type: userType,
				Resolve: s.guardedResolver(fieldProfile, func(ctx context.Context, p graphql.ResolveParams) (interface{}, error) {
					return s.auth.Profile(ctx, guard.IdentityFrom(ctx).ID)
				}),
			},
			fieldUsers: &graphql.Field{
				Type: graphql.NewList(userType),
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: s.guardedResolver(fieldUsers, func(ctx context.Context, p graphql.ResolveParams) (interface{}, error) {
					offset, _ := p.Args["offset"].(int)
					limit, _ := p.Args["limit"].(int)
					return s.auth.ListUsers(ctx, offset, limit)
				}),
			},
		},
	})
	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}

func (s *Server) guardedResolver(field string, resolve func(context.Context, graphql.ResolveParams) (interface{}, error)) graphql.FieldResolveFn {
	route := guard.GraphQLRoute(field)
	return func(p graphql.ResolveParams) (interface{}, error) {
		sessionID, _ := p.Context.Value(graphQLSessionKey{}).(string)
		decision := s.accessGuard.Evaluate(p.Context, guard.RequestView{SessionID: sessionID, Path: route})
		if !decision.Allowed() {
			return nil, newGraphQLError(decision.Reason())
		}

		ctx := guard.WithIdentity(p.Context, decision.Identity())
		ok, err := s.roleGuard.Check(ctx, route)
		if err != nil {
			return nil, newGraphQLError(err)
		}
		if !ok {
			return nil, newGraphQLError(forbiddenErr)
		}

		result, err := resolve(ctx, p)
		if err != nil {
			return nil, newGraphQLError(err)
		}
		return result, nil
	}
}

// GraphQLHandler executes a query against the schema. Field errors are
// reported in the response body with a 200 status.
func (s *Server) GraphQLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GraphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
			s.writeError(w, r, http.StatusBadRequest, invalidBodyMsg)
			return
		}

		ctx := context.WithValue(r.Context(), graphQLSessionKey{}, s.sessionID(r))
		result := graphql.Do(graphql.Params{
			Schema:         s.schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        ctx,
		})
		writeJSON(w, http.StatusOK, result)
	}
}
