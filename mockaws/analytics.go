package mockaws

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics/types"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
	"github.com/Nuvalence/kinesis-quality-toolkit/resources"
)

const analyticsTargetPrefix = "KinesisAnalytics_20150814."

// MockInput is an application input. The kind of source is taken from the ARN's service.
type MockInput struct {
	ID          string
	NamePrefix  string
	ResourceARN string
}

// MockOutput is an application output. The kind of destination is taken from the ARN's service.
type MockOutput struct {
	ID          string
	Name        string
	ResourceARN string
}

// MockApplication is the state of one Kinesis Data Analytics application.
type MockApplication struct {
	Name    string
	Status  types.ApplicationStatus
	Inputs  []MockInput
	Outputs []MockOutput
	// TransitionDescribes is how many describe calls report STARTING or STOPPING after a
	// start or stop command before the application reaches RUNNING or READY.
	TransitionDescribes int
}

// StartRequest is a StartApplication call received by the mock.
type StartRequest struct {
	ApplicationName string
	// InputStartingPositions maps each input ID to its requested starting position.
	InputStartingPositions map[string]string
}

type applicationState struct {
	app           MockApplication
	created       time.Time
	version       int64
	scripted      []types.ApplicationStatus
	target        types.ApplicationStatus
	remaining     int
	describeCount int
}

// AnalyticsService is a mock Kinesis Data Analytics (SQL applications) endpoint.
type AnalyticsService struct {
	applications  map[string]*applicationState
	startRequests []StartRequest
	stopRequests  []string
	handler       http.Handler
	debugLogger   framework.Logger
	lock          sync.Mutex
}

func NewAnalyticsService(debugLogger framework.Logger) *AnalyticsService {
	s := &AnalyticsService{
		applications: make(map[string]*applicationState),
		debugLogger:  framework.LoggerOrNull(debugLogger),
	}
	s.handler = newRouter(analyticsTargetPrefix, map[string]operationHandler{
		"DescribeApplication": s.describeApplication,
		"StartApplication":    s.startApplication,
		"StopApplication":     s.stopApplication,
	}, s.debugLogger)
	return s
}

func (s *AnalyticsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// AddApplication adds or replaces an application.
func (s *AnalyticsService) AddApplication(app MockApplication) {
	s.lock.Lock()
	s.applications[app.Name] = &applicationState{app: app, created: time.Now(), version: 1}
	s.lock.Unlock()
}

// ScriptStatuses makes the next describe calls report the given statuses in order, ignoring
// the application's actual state. Once the script is used up, describes report the actual state.
func (s *AnalyticsService) ScriptStatuses(name string, statuses ...types.ApplicationStatus) {
	s.lock.Lock()
	s.applications[name].scripted = append(s.applications[name].scripted, statuses...)
	s.lock.Unlock()
}

// Status returns the application's actual state.
func (s *AnalyticsService) Status(name string) types.ApplicationStatus {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.applications[name].app.Status
}

// DescribeCount returns how many times the application has been described.
func (s *AnalyticsService) DescribeCount(name string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.applications[name].describeCount
}

func (s *AnalyticsService) StartRequests() []StartRequest {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]StartRequest(nil), s.startRequests...)
}

// StopRequests returns the names of the applications that were asked to stop.
func (s *AnalyticsService) StopRequests() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.stopRequests...)
}

func (s *AnalyticsService) lookup(w http.ResponseWriter, name string) *applicationState {
	state, ok := s.applications[name]
	if !ok {
		writeError(w, http.StatusBadRequest, resourceNotFound, fmt.Sprintf("Application %s is not found", name))
	}
	return state
}

func (s *AnalyticsService) describeApplication(w http.ResponseWriter, r *http.Request) {
	var req struct{ ApplicationName string }
	if !readRequest(w, r, &req) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	state := s.lookup(w, req.ApplicationName)
	if state == nil {
		return
	}
	state.describeCount++
	status := state.app.Status
	if state.target != "" {
		if state.remaining > 0 {
			state.remaining--
		} else {
			state.app.Status, state.target = state.target, ""
		}
		status = state.app.Status
	}
	if len(state.scripted) != 0 {
		status, state.scripted = state.scripted[0], state.scripted[1:]
	}
	s.debugLogger.Printf("Application %s described as %s", req.ApplicationName, status)
	writeJSON(w, map[string]interface{}{"ApplicationDetail": state.detailJSON(status)})
}

func (s *AnalyticsService) startApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApplicationName     string
		InputConfigurations []struct {
			Id                                 string //nolint:revive,stylecheck
			InputStartingPositionConfiguration struct {
				InputStartingPosition string
			}
		}
	}
	if !readRequest(w, r, &req) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	start := StartRequest{ApplicationName: req.ApplicationName, InputStartingPositions: make(map[string]string)}
	for _, c := range req.InputConfigurations {
		start.InputStartingPositions[c.Id] = c.InputStartingPositionConfiguration.InputStartingPosition
	}
	s.startRequests = append(s.startRequests, start)
	state := s.lookup(w, req.ApplicationName)
	if state == nil {
		return
	}
	if state.app.Status != types.ApplicationStatusReady {
		writeError(w, http.StatusBadRequest, resourceInUse,
			fmt.Sprintf("Application %s is in %s state", req.ApplicationName, state.app.Status))
		return
	}
	state.transition(types.ApplicationStatusStarting, types.ApplicationStatusRunning)
	writeJSON(w, struct{}{})
}

func (s *AnalyticsService) stopApplication(w http.ResponseWriter, r *http.Request) {
	var req struct{ ApplicationName string }
	if !readRequest(w, r, &req) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopRequests = append(s.stopRequests, req.ApplicationName)
	state := s.lookup(w, req.ApplicationName)
	if state == nil {
		return
	}
	if state.app.Status != types.ApplicationStatusRunning {
		writeError(w, http.StatusBadRequest, resourceInUse,
			fmt.Sprintf("Application %s is in %s state", req.ApplicationName, state.app.Status))
		return
	}
	state.transition(types.ApplicationStatusStopping, types.ApplicationStatusReady)
	writeJSON(w, struct{}{})
}

func (a *applicationState) transition(interim, target types.ApplicationStatus) {
	a.app.Status, a.target, a.remaining = interim, target, a.app.TransitionDescribes
	a.version++
}

type destinationJSON struct {
	ResourceARN string
	RoleARN     string
}

func (a *applicationState) detailJSON(status types.ApplicationStatus) map[string]interface{} {
	role := fmt.Sprintf("arn:aws:iam::%s:role/kinesis-analytics-%s", mockAccountID, a.app.Name)
	inputs := []map[string]interface{}{}
	for _, in := range a.app.Inputs {
		desc := map[string]interface{}{
			"InputId":          in.ID,
			"NamePrefix":       in.NamePrefix,
			"InAppStreamNames": []string{in.NamePrefix + "_001"},
			"InputParallelism": map[string]int{"Count": 1},
			"InputSchema": map[string]interface{}{
				"RecordFormat":  map[string]string{"RecordFormatType": "JSON"},
				"RecordColumns": []interface{}{},
			},
			descriptionKey(in.ResourceARN, "Input"): destinationJSON{ResourceARN: in.ResourceARN, RoleARN: role},
		}
		inputs = append(inputs, desc)
	}
	outputs := []map[string]interface{}{}
	for _, out := range a.app.Outputs {
		outputs = append(outputs, map[string]interface{}{
			"OutputId":          out.ID,
			"Name":              out.Name,
			"DestinationSchema": map[string]string{"RecordFormatType": "JSON"},
			descriptionKey(out.ResourceARN, "Output"): destinationJSON{ResourceARN: out.ResourceARN, RoleARN: role},
		})
	}
	return map[string]interface{}{
		"ApplicationName":      a.app.Name,
		"ApplicationARN":       fmt.Sprintf("arn:aws:kinesisanalytics:%s:%s:application/%s", mockRegion, mockAccountID, a.app.Name),
		"ApplicationStatus":    status,
		"ApplicationVersionId": a.version,
		"CreateTimestamp":      epochSeconds(a.created),
		"InputDescriptions":    inputs,
		"OutputDescriptions":   outputs,
	}
}

// descriptionKey picks the description property matching the resource's service, such as
// KinesisStreamsInputDescription or LambdaOutputDescription.
func descriptionKey(arn, direction string) string {
	service := ""
	if r, err := resources.ParseAwsResource(arn); err == nil {
		service = r.Service
	}
	switch strings.ToLower(service) {
	case "firehose":
		return "KinesisFirehose" + direction + "Description"
	case "lambda":
		return "Lambda" + direction + "Description"
	default:
		return "KinesisStreams" + direction + "Description"
	}
}
