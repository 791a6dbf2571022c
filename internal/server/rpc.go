package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/copyleftdev/nlpsolver/internal/optimization/problems"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

var errInvalidParams = errors.New("invalid params")

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jobParams struct {
	ID string `json:"id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "solve.start":
		result, err = s.rpcStart(request.Params)
	case "solve.status":
		result, err = s.rpcStatus(request.Params)
	case "solve.cancel":
		result, err = s.rpcCancel(request.Params)
	case "problems.list":
		result = map[string]interface{}{"problems": problems.Names()}
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := codeServerError
		if errors.Is(err, errInvalidParams) || errors.Is(err, ErrInvalidRequest) {
			code = codeInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// rpcStart handles solve.start.
// Params: {"problem": {...}, "options": {...}}
// Returns: {"id": "solve_1", "status": "pending"}
func (s *Server) rpcStart(params json.RawMessage) (interface{}, error) {
	var req SolveRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	job, err := s.start(req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":     job.ID,
		"status": JobPending,
	}, nil
}

// rpcStatus handles solve.status.
// Params: {"id": "solve_1"}
func (s *Server) rpcStatus(params json.RawMessage) (interface{}, error) {
	id, err := jobID(params)
	if err != nil {
		return nil, err
	}
	return s.status(id)
}

// rpcCancel handles solve.cancel.
// Params: {"id": "solve_1"}
func (s *Server) rpcCancel(params json.RawMessage) (interface{}, error) {
	id, err := jobID(params)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(id); err != nil {
		return nil, err
	}
	return map[string]string{"status": "cancellation requested"}, nil
}

func jobID(params json.RawMessage) (string, error) {
	var p jobParams
	if err := decodeParams(params, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", fmt.Errorf("%w: id is required", errInvalidParams)
	}
	return p.ID, nil
}

// decodeParams accepts named params or a positional array whose first element
// holds them.
func decodeParams(params json.RawMessage, v interface{}) error {
	params = bytes.TrimSpace(params)
	if len(params) == 0 {
		return fmt.Errorf("%w: missing required parameters", errInvalidParams)
	}

	if params[0] == '[' {
		var positional []json.RawMessage
		if err := json.Unmarshal(params, &positional); err != nil {
			return fmt.Errorf("%w: %v", errInvalidParams, err)
		}
		if len(positional) == 0 {
			return fmt.Errorf("%w: missing required parameters", errInvalidParams)
		}
		params = positional[0]
	}

	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: expected object: %v", errInvalidParams, err)
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("JSON-RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
