package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/serviceerror"
)

const (
	apiPrefix = "/api/v1/"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// HTTPAPIServer exposes the workflow and namespace services as a JSON over
// HTTP API. Every operation is a POST of the request body to
// /api/v1/<operation>.
type HTTPAPIServer struct {
	server   *http.Server
	listener net.Listener
	logger   log.Logger
}

// NewHTTPAPIServer builds the API server. Start binds the listen address.
func NewHTTPAPIServer(
	listenAddress string,
	workflowHandler *WorkflowHandler,
	namespaceHandler *NamespaceHandler,
	logger log.Logger,
) *HTTPAPIServer {
	mux := http.NewServeMux()

	route(mux, "start-workflow-execution", workflowHandler.StartWorkflowExecution)
	route(mux, "signal-workflow-execution", workflowHandler.SignalWorkflowExecution)
	route(mux, "signal-with-start-workflow-execution", workflowHandler.SignalWithStartWorkflowExecution)
	route(mux, "request-cancel-workflow-execution", workflowHandler.RequestCancelWorkflowExecution)
	route(mux, "terminate-workflow-execution", workflowHandler.TerminateWorkflowExecution)
	route(mux, "describe-workflow-execution", workflowHandler.DescribeWorkflowExecution)
	route(mux, "query-workflow", workflowHandler.QueryWorkflow)
	route(mux, "get-workflow-execution-history", workflowHandler.GetWorkflowExecutionHistory)
	route(mux, "list-workflow-executions", workflowHandler.ListWorkflowExecutions)

	route(mux, "poll-workflow-task-queue", workflowHandler.PollWorkflowTaskQueue)
	route(mux, "respond-workflow-task-completed", workflowHandler.RespondWorkflowTaskCompleted)
	route(mux, "respond-workflow-task-failed", workflowHandler.RespondWorkflowTaskFailed)
	route(mux, "poll-activity-task-queue", workflowHandler.PollActivityTaskQueue)
	route(mux, "respond-activity-task-completed", workflowHandler.RespondActivityTaskCompleted)
	route(mux, "respond-activity-task-failed", workflowHandler.RespondActivityTaskFailed)
	route(mux, "record-activity-task-heartbeat", workflowHandler.RecordActivityTaskHeartbeat)

	route(mux, "register-namespace", namespaceHandler.RegisterNamespace)
	route(mux, "describe-namespace", namespaceHandler.DescribeNamespace)
	route(mux, "update-namespace", namespaceHandler.UpdateNamespace)
	route(mux, "deprecate-namespace", namespaceHandler.DeprecateNamespace)
	route(mux, "list-namespaces", namespaceHandler.ListNamespaces)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &HTTPAPIServer{
		server: &http.Server{
			Addr:    listenAddress,
			Handler: mux,
			// Long polls hold the connection open, so only the header read
			// carries a server-side timeout.
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}
}

// Start binds the listen address and serves until Stop.
func (s *HTTPAPIServer) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("frontend api server listening", tag.Address(listener.Addr().String()))
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("frontend api server failed", tag.Error(err))
		}
	}()
	return nil
}

// Address returns the bound listen address. Valid after Start.
func (s *HTTPAPIServer) Address() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests and closes the listener.
func (s *HTTPAPIServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("frontend api server shutdown failed", tag.Error(err))
	}
}

func route[Req any, Resp any](
	mux *http.ServeMux,
	name string,
	handle func(context.Context, *Req) (*Resp, error),
) {
	mux.HandleFunc("POST "+apiPrefix+name, func(w http.ResponseWriter, r *http.Request) {
		request := new(Req)
		if err := json.NewDecoder(r.Body).Decode(request); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, serviceerror.NewInvalidArgumentf("invalid request body: %v", err))
			return
		}
		response, err := handle(r.Context(), request)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// RunID carries the conflicting run for already-started errors.
	RunID string `json:"runId,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "Internal"
	body := errorResponse{Error: err.Error()}

	var (
		invalidArgument   *serviceerror.InvalidArgument
		notFound          *serviceerror.NotFound
		namespaceNotFound *serviceerror.NamespaceNotFound
		namespaceExists   *serviceerror.NamespaceAlreadyExists
		alreadyStarted    *serviceerror.WorkflowExecutionAlreadyStarted
		unavailable       *serviceerror.Unavailable
		deadlineExceeded  *serviceerror.DeadlineExceeded
		canceled          *serviceerror.Canceled
		dataLoss          *serviceerror.DataLoss
	)
	switch {
	case errors.As(err, &invalidArgument):
		status, code = http.StatusBadRequest, "InvalidArgument"
	case errors.As(err, &namespaceNotFound):
		status, code = http.StatusNotFound, "NamespaceNotFound"
	case errors.As(err, &notFound):
		status, code = http.StatusNotFound, "NotFound"
	case errors.As(err, &namespaceExists):
		status, code = http.StatusConflict, "NamespaceAlreadyExists"
	case errors.As(err, &alreadyStarted):
		status, code = http.StatusConflict, "WorkflowExecutionAlreadyStarted"
		body.RunID = alreadyStarted.RunID
	case errors.As(err, &unavailable):
		status, code = http.StatusServiceUnavailable, "Unavailable"
	case errors.As(err, &deadlineExceeded):
		status, code = http.StatusGatewayTimeout, "DeadlineExceeded"
	case errors.As(err, &canceled):
		status, code = http.StatusRequestTimeout, "Canceled"
	case errors.As(err, &dataLoss):
		status, code = http.StatusInternalServerError, "DataLoss"
	}
	body.Code = code

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
