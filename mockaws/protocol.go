// Package mockaws contains in-process mock implementations of the Kinesis and Kinesis Data
// Analytics APIs, for tests that exercise the real AWS SDK clients without AWS.
//
// Both services speak the AWS JSON 1.1 protocol: every request is a POST to "/" whose
// X-Amz-Target header names the operation.
package mockaws

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/gorilla/mux"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
)

const (
	jsonContentType    = "application/x-amz-json-1.1"
	targetHeader       = "X-Amz-Target"
	errorTypeHeader    = "X-Amzn-Errortype"
	mockRegion         = "us-east-1"
	mockAccountID      = "123456789012"
	mockAccessKeyID    = "AKIDMOCKACCESSKEY"
	mockSecretKey      = "mock-secret-key"
	unknownOperation   = "UnknownOperationException"
	invalidArgument    = "InvalidArgumentException"
	resourceNotFound   = "ResourceNotFoundException"
	resourceInUse      = "ResourceInUseException"
	expiredIterator    = "ExpiredIteratorException"
	throughputExceeded = "ProvisionedThroughputExceededException"
)

// NewAWSConfig returns an AWS configuration that sends every request to baseURL, typically
// the URL of an httptest.Server running one of the mock services. Retries are disabled so
// that errors reach the caller immediately.
func NewAWSConfig(baseURL string) aws.Config {
	return aws.Config{
		Region:       mockRegion,
		Credentials:  credentials.NewStaticCredentialsProvider(mockAccessKeyID, mockSecretKey, ""),
		BaseEndpoint: aws.String(baseURL),
		Retryer:      func() aws.Retryer { return aws.NopRetryer{} },
	}
}

// StreamARN returns the ARN that the mock services use for a Kinesis stream.
func StreamARN(stream string) string {
	return fmt.Sprintf("arn:aws:kinesis:%s:%s:stream/%s", mockRegion, mockAccountID, stream)
}

// FirehoseARN returns the ARN that the mock services use for a Firehose delivery stream.
func FirehoseARN(name string) string {
	return fmt.Sprintf("arn:aws:firehose:%s:%s:deliverystream/%s", mockRegion, mockAccountID, name)
}

// LambdaARN returns the ARN that the mock services use for a Lambda function.
func LambdaARN(name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", mockRegion, mockAccountID, name)
}

type operationHandler func(w http.ResponseWriter, r *http.Request)

func newRouter(targetPrefix string, operations map[string]operationHandler, debugLogger framework.Logger) *mux.Router {
	router := mux.NewRouter()
	for name, handler := range operations {
		router.HandleFunc("/", handler).Methods("POST").Headers(targetHeader, targetPrefix+name)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		debugLogger.Printf("Unsupported request: %s %s target=%q", r.Method, r.URL.Path, r.Header.Get(targetHeader))
		writeError(w, http.StatusBadRequest, unknownOperation, "unsupported operation "+r.Header.Get(targetHeader))
	})
	return router
}

func readRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "SerializationException", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalFailure", err.Error())
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	data, _ := json.Marshal(map[string]string{"__type": code, "message": message})
	w.Header().Set("Content-Type", jsonContentType)
	w.Header().Set(errorTypeHeader, code)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// epochSeconds is how the JSON protocol represents timestamps.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func fromEpochSeconds(seconds float64) time.Time {
	return time.UnixMilli(int64(math.Round(seconds * 1000)))
}
