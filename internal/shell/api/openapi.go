package api

import (
	"net/http"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/api/openapi"
	"github.com/artpar/orbit-raas/internal/shell/jobs"
)

// NewOpenAPI describes the status server and the job server.
func NewOpenAPI(version string, servers ...string) *openapi.Generator {
	opts := []openapi.Option{openapi.WithVersion(version)}
	for _, s := range servers {
		opts = append(opts, openapi.WithServer(s))
	}
	g := openapi.NewGenerator(opts...)

	g.Register(
		openapi.Endpoint{Method: http.MethodGet, Path: "/health", OperationID: "health", Summary: "Liveness check", Tag: "Status"},
		openapi.Endpoint{Method: http.MethodGet, Path: "/version", OperationID: "version", Summary: "Daemon version", Tag: "Status", Response: VersionResponse{}},
		openapi.Endpoint{
			Method: http.MethodGet, Path: "/status", OperationID: "getStatus", Summary: "Deployment record",
			Tag: "Status", Response: StatusResponse{}, Alternates: []string{"application/yaml"},
		},
		openapi.Endpoint{
			Method: http.MethodGet, Path: "/logs", OperationID: "getLogs", Summary: "Deployment trace",
			Tag: "Status", Response: LogsResponse{}, Errors: []int{http.StatusBadRequest},
		},
		openapi.Endpoint{Method: http.MethodGet, Path: "/containers", OperationID: "listContainers", Summary: "Tracked containers", Tag: "Status", Response: ContainersResponse{}},
		openapi.Endpoint{
			Method: http.MethodGet, Path: "/containers/{id}/logs", OperationID: "getContainerLogs", Summary: "Tail a tracked container's output",
			Tag: "Status", Response: ContainerLogsResponse{},
			Errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway},
		},
		openapi.Endpoint{Method: http.MethodGet, Path: "/prerequisites", OperationID: "checkPrerequisites", Summary: "External tool availability", Tag: "Status", Response: PrerequisitesResponse{}},
		openapi.Endpoint{
			Method: http.MethodGet, Path: "/jobs/runs", OperationID: "listJobRuns", Summary: "Recorded job runs",
			Tag: "Jobs", Response: JobRunsResponse{}, Errors: []int{http.StatusInternalServerError},
		},
		openapi.Endpoint{
			Method: http.MethodPost, Path: "/jobs/{id}", OperationID: "invokeJob",
			Summary: "Invoke a job (1 metadata, 2 restart, 3 bridge, 4 reconcile, 5 deposit, 6 refund); jobs 1, 5 and 6 take a JSON body",
			Tag:     "Jobs", Request: domain.RollupMetadata{}, Response: jobs.Result{},
			Errors: []int{http.StatusNotFound, http.StatusUnauthorized},
		},
	)
	return g
}
