// Package monitor serves the records accumulated from application outputs over HTTP, so that
// a long-running scenario can be watched from a browser or curl while it runs.
//
// GET /outputs/{name} is a server-sent event stream with one "record" event per record, whose
// ID is the record's position in the output. A new subscriber first receives every record
// published so far, or those after its Last-Event-ID. GET /status describes every output.
package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/launchdarkly/eventsource"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
)

// RecordEventName is the SSE event name of each published record.
const RecordEventName = "record"

type eventSourceDebugLogger struct {
	logger framework.Logger
}

func (l eventSourceDebugLogger) Println(args ...interface{}) {
	l.logger.Println(args...)
}

func (l eventSourceDebugLogger) Printf(format string, args ...interface{}) {
	l.logger.Printf(format, args...)
}

// OutputStatus is the /status entry for one output.
type OutputStatus struct {
	Name      string `json:"name"`
	Records   int    `json:"records"`
	LastError string `json:"lastError,omitempty"`
}

type recordEvent struct {
	id   int
	data json.RawMessage
}

func (e recordEvent) Event() string { return RecordEventName }
func (e recordEvent) Id() string    { return strconv.Itoa(e.id) } //nolint:stylecheck
func (e recordEvent) Data() string  { return string(e.data) }

// feed holds the events published for one output. It is the eventsource.Repository for the
// output's channel.
type feed struct {
	name    string
	events  []recordEvent
	lastErr error
	lock    sync.RWMutex
}

func (f *feed) Replay(channel, id string) chan eventsource.Event {
	after, err := strconv.Atoi(id)
	if err != nil || after < 0 {
		after = 0
	}
	f.lock.RLock()
	var pending []recordEvent
	if after < len(f.events) {
		pending = append(pending, f.events[after:]...)
	}
	f.lock.RUnlock()

	ch := make(chan eventsource.Event, len(pending))
	for _, e := range pending {
		ch <- e
	}
	close(ch)
	return ch
}

func (f *feed) status() OutputStatus {
	f.lock.RLock()
	defer f.lock.RUnlock()
	s := OutputStatus{Name: f.name, Records: len(f.events)}
	if f.lastErr != nil {
		s.LastError = f.lastErr.Error()
	}
	return s
}

// Server publishes output records. Create outputs with Watch.
type Server struct {
	streams     *eventsource.Server
	router      *mux.Router
	feeds       map[string]*feed
	debugLogger framework.Logger
	lock        sync.RWMutex
}

func NewServer(debugLogger framework.Logger) *Server {
	logger := framework.LoggerOrNull(debugLogger)
	streams := eventsource.NewServer()
	streams.ReplayAll = true
	streams.Logger = eventSourceDebugLogger{logger}

	s := &Server{
		streams:     streams,
		feeds:       make(map[string]*feed),
		debugLogger: logger,
	}
	router := mux.NewRouter()
	router.HandleFunc("/status", s.serveStatus).Methods("GET")
	router.HandleFunc("/outputs/{name}", s.serveOutput).Methods("GET")
	s.router = router
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects every subscriber.
func (s *Server) Close() {
	s.streams.Close()
}

func (s *Server) serveOutput(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.lock.RLock()
	_, ok := s.feeds[name]
	s.lock.RUnlock()
	if !ok {
		http.Error(w, fmt.Sprintf("no output named %q is being watched", name), http.StatusNotFound)
		return
	}
	s.debugLogger.Printf("New subscriber to %s", name)
	s.streams.Handler(name)(w, r)
	s.debugLogger.Printf("End of stream request for %s", name)
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Status())
}

// Status describes every watched output, ordered by name.
func (s *Server) Status() []OutputStatus {
	s.lock.RLock()
	feeds := make([]*feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f)
	}
	s.lock.RUnlock()
	ret := make([]OutputStatus, 0, len(feeds))
	for _, f := range feeds {
		ret = append(ret, f.status())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

func (s *Server) feedFor(name string) (*feed, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.feeds[name]; exists {
		return nil, fmt.Errorf("output %q is already being watched", name)
	}
	f := &feed{name: name}
	s.feeds[name] = f
	s.streams.Register(name, f)
	return f, nil
}

// publish appends records to the feed and sends them to current subscribers.
func (s *Server) publish(f *feed, records []json.RawMessage, err error) {
	f.lock.Lock()
	events := make([]recordEvent, 0, len(records))
	for _, data := range records {
		e := recordEvent{id: len(f.events) + 1, data: data}
		f.events = append(f.events, e)
		events = append(events, e)
	}
	f.lastErr = err
	f.lock.Unlock()

	for _, e := range events {
		s.debugLogger.Printf("Sending %s record %s: %s", f.name, e.Id(), e.Data())
		s.streams.Publish([]string{f.name}, e)
	}
}
