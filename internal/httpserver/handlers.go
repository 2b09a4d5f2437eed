package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/advisor"
	"github.com/spigell/job-advisor/internal/ai"
)

type chatRequest struct {
	Message  string  `json:"message"`
	ThreadID *string `json:"thread_id"`
}

type chatResponse struct {
	Response string  `json:"response"`
	ThreadID *string `json:"thread_id"`
}

type healthResponse struct {
	Status string `json:"status"`
	Agent  string `json:"agent"`
}

type resetResponse struct {
	Message  string  `json:"message"`
	ThreadID *string `json:"thread_id"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

const (
	kindAuth     = "auth"
	kindUpstream = "upstream"
	kindInternal = "internal"
)

func (s *Server) health(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, healthResponse{Status: "healthy", Agent: AgentName})
}

func (s *Server) reset(rw http.ResponseWriter, _ *http.Request) {
	s.advisor.Reset()
	writeJSON(rw, http.StatusOK, resetResponse{Message: "Conversation reset"})
}

func (s *Server) chat(rw http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		// Empty and malformed bodies carry no usable message either.
		s.logger.Debug("decoding chat request", zap.Error(err))
		req = chatRequest{}
	}

	reply, err := s.advisor.Send(r.Context(), advisor.Request{
		Message:  req.Message,
		ThreadID: req.ThreadID,
	})
	if err != nil {
		status, resp := errorToResponse(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("chat failed", zap.String("kind", resp.Kind), zap.Error(err))
		}
		writeJSON(rw, status, resp)
		return
	}

	writeJSON(rw, http.StatusOK, chatResponse{
		Response: reply.Text,
		ThreadID: reply.ThreadID,
	})
}

func errorToResponse(err error) (int, errorResponse) {
	var (
		validationErr *ai.ValidationError
		authErr       *ai.AuthError
		upstreamErr   *ai.UpstreamError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, errorResponse{Error: validationErr.Reason}
	case errors.As(err, &authErr):
		return http.StatusInternalServerError, errorResponse{Error: "Chat failed", Detail: authErr.Error(), Kind: kindAuth}
	case errors.As(err, &upstreamErr):
		return http.StatusInternalServerError, errorResponse{Error: "Chat failed", Detail: upstreamErr.Error(), Kind: kindUpstream}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Chat failed", Detail: err.Error(), Kind: kindInternal}
	}
}
