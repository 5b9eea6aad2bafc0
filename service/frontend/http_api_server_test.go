package frontend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common/log"
)

func newTestAPIServer(t *testing.T) *HTTPAPIServer {
	t.Helper()
	env := newFrontendTestEnv(t)
	server := NewHTTPAPIServer("127.0.0.1:0", env.workflowHandler, env.namespaceHandler, log.NewNoopLogger())
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)
	return server
}

// postJSON posts the request and decodes the response body: into response on
// success, into the returned error body otherwise.
func postJSON(t *testing.T, server *HTTPAPIServer, operation string, request interface{}, response interface{}) (int, errorResponse) {
	t.Helper()
	body, err := json.Marshal(request)
	require.NoError(t, err)
	httpResponse, err := http.Post(
		"http://"+server.Address()+apiPrefix+operation,
		"application/json",
		bytes.NewReader(body),
	)
	require.NoError(t, err)
	defer func() { _ = httpResponse.Body.Close() }()

	var errorBody errorResponse
	if httpResponse.StatusCode == http.StatusOK {
		if response != nil {
			require.NoError(t, json.NewDecoder(httpResponse.Body).Decode(response))
		}
	} else {
		require.NoError(t, json.NewDecoder(httpResponse.Body).Decode(&errorBody))
	}
	return httpResponse.StatusCode, errorBody
}

func TestHTTPStartAndDescribeWorkflow(t *testing.T) {
	server := newTestAPIServer(t)

	var startResponse workflowservice.StartWorkflowExecutionResponse
	status, _ := postJSON(t, server, "start-workflow-execution", frontendStartRequest("wf-http"), &startResponse)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, startResponse.RunID)

	var describeResponse workflowservice.DescribeWorkflowExecutionResponse
	status, _ = postJSON(t, server, "describe-workflow-execution", &workflowservice.DescribeWorkflowExecutionRequest{
		Namespace:  testNamespace,
		WorkflowID: "wf-http",
	}, &describeResponse)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, startResponse.RunID, describeResponse.WorkflowExecutionInfo.Execution.RunID)
	assert.Equal(t, enums.WorkflowExecutionStatusRunning, describeResponse.WorkflowExecutionInfo.Status)
}

func TestHTTPErrorMapping(t *testing.T) {
	server := newTestAPIServer(t)

	request := frontendStartRequest("wf-http-invalid")
	request.WorkflowID = ""
	status, errorBody := postJSON(t, server, "start-workflow-execution", request, nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidArgument", errorBody.Code)

	status, errorBody = postJSON(t, server, "describe-workflow-execution", &workflowservice.DescribeWorkflowExecutionRequest{
		Namespace:  testNamespace,
		WorkflowID: "no-such-workflow",
	}, nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NotFound", errorBody.Code)
}

func TestHTTPDuplicateStartConflict(t *testing.T) {
	server := newTestAPIServer(t)

	request := frontendStartRequest("wf-http-dup")
	status, _ := postJSON(t, server, "start-workflow-execution", request, nil)
	require.Equal(t, http.StatusOK, status)

	// A different request id against a running workflow id conflicts.
	request.RequestID = "another-request"
	status, errorBody := postJSON(t, server, "start-workflow-execution", request, nil)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "WorkflowExecutionAlreadyStarted", errorBody.Code)
	assert.NotEmpty(t, errorBody.RunID)
}
