// Package toolserver is a storefront-shaped JSON-RPC tool server backed by
// a YAML product catalog. It serves local development and tests.
package toolserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/mcp"
	"github.com/soyeahso/shopchat/internal/version"
)

// ToolSearchCatalog is the only tool this server exposes.
const ToolSearchCatalog = "search_shop_catalog"

const (
	protocolVersion = "2024-11-05"
	defaultLimit    = 10
	maxBody         = 1 << 20
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *mcp.RPCError   `json:"error,omitempty"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

var searchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Words to search product titles, descriptions and tags for"},
		"context": {"type": "string", "description": "Extra shopper context, ignored by this server"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Maximum products to return"}
	},
	"required": ["query"]
}`)

// Server answers tools/list and tools/call over POST /api/mcp.
type Server struct {
	catalog  *Catalog
	username string
	password string
	log      *logging.Logger
}

// New creates a server. Basic auth is enforced when username is set.
func New(catalog *Catalog, username, password string, log *logging.Logger) *Server {
	return &Server{
		catalog:  catalog,
		username: username,
		password: password,
		log:      log.Sub("toolserver"),
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/mcp", s.handleRPC)
	return mux
}

func (s *Server) authorized(r *http.Request) bool {
	if s.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) == 1
	return userOK && passOK
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="catalog"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		s.log.Warn().Err(err).Msg("parse error")
		s.reply(w, nil, nil, &mcp.RPCError{Code: mcp.CodeParseError, Message: "Parse error", Data: err.Error()})
		return
	}

	s.log.Debug().Str("method", req.Method).Msg("handling request")

	switch req.Method {
	case "initialize":
		s.reply(w, req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]string{"name": "catalog", "version": version.Version},
		}, nil)
	case mcp.MethodToolsList:
		s.reply(w, req.ID, map[string]any{"tools": []tool{{
			Name:        ToolSearchCatalog,
			Description: "Search the shop's catalog for products matching a query.",
			InputSchema: searchSchema,
		}}}, nil)
	case mcp.MethodToolsCall:
		s.handleCall(w, req)
	default:
		s.reply(w, req.ID, nil, &mcp.RPCError{
			Code:    mcp.CodeMethodNotFound,
			Message: "Method not found",
			Data:    fmt.Sprintf("Unknown method: %s", req.Method),
		})
	}
}

func (s *Server) handleCall(w http.ResponseWriter, req request) {
	var params mcp.CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.reply(w, req.ID, nil, &mcp.RPCError{Code: mcp.CodeInvalidParams, Message: "Invalid params", Data: err.Error()})
		return
	}
	if params.Name != ToolSearchCatalog {
		s.reply(w, req.ID, nil, &mcp.RPCError{
			Code:    mcp.CodeInvalidParams,
			Message: "Unknown tool",
			Data:    fmt.Sprintf("Tool not found: %s", params.Name),
		})
		return
	}

	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.reply(w, req.ID, toolError("invalid arguments: "+err.Error()), nil)
			return
		}
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	found := s.catalog.Search(args.Query, limit)
	s.log.Info().Str("query", args.Query).Int("results", len(found)).Msg("catalog search")

	text, err := json.Marshal(map[string]any{"products": found})
	if err != nil {
		s.reply(w, req.ID, nil, &mcp.RPCError{Code: mcp.CodeInternalError, Message: err.Error()})
		return
	}
	s.reply(w, req.ID, toolResult{Content: []contentItem{{Type: "text", Text: string(text)}}}, nil)
}

func toolError(message string) toolResult {
	return toolResult{Content: []contentItem{{Type: "text", Text: message}}, IsError: true}
}

func (s *Server) reply(w http.ResponseWriter, id json.RawMessage, result any, rpcErr *mcp.RPCError) {
	if id == nil {
		id = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}); err != nil {
		s.log.Error().Err(err).Msg("writing response")
	}
}
