package tt

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// ResponseEnv names the environment variable holding the path the child
// writes its Response to.
const ResponseEnv = "T4GO_RESPONSE"

// Exit codes of Serve.
const (
	ExitOK            = 0
	ExitBadRequest    = 2
	ExitContractError = 3
	ExitWriteFailed   = 4
)

// Request is sent to the child on stdin.
type Request struct {
	TypeName string                 `msgpack:"type_name"`
	Session  map[string]interface{} `msgpack:"session,omitempty"`
	Ambient  map[string]interface{} `msgpack:"ambient,omitempty"`
	Host     *HostSnapshot          `msgpack:"host,omitempty"`
}

// HostSnapshot is the host state a child needs, captured by the caller.
type HostSnapshot struct {
	TemplateFile string   `msgpack:"template_file"`
	IncludePaths []string `msgpack:"include_paths,omitempty"`
	// Parameters holds host parameter values keyed by ParameterKey.
	Parameters map[string]string `msgpack:"parameters,omitempty"`
}

// ParameterRef identifies a declared template parameter.
type ParameterRef struct {
	Processor string
	Name      string
}

// ParameterKey is the key of a parameter in HostSnapshot.Parameters.
func ParameterKey(processor, name string) string {
	return processor + "/" + name
}

// NewHostSnapshot captures h for the given parameters.
func NewHostSnapshot(h Host, includePaths []string, params []ParameterRef) *HostSnapshot {
	snap := &HostSnapshot{
		TemplateFile: h.TemplateFile(),
		IncludePaths: includePaths,
		Parameters:   make(map[string]string),
	}
	for _, p := range params {
		if v, ok := h.ResolveParameterValue(ParameterDirectiveID, p.Processor, p.Name); ok {
			snap.Parameters[ParameterKey(p.Processor, p.Name)] = v
		}
	}
	return snap
}

// ErrorRecord is an error or warning in a Response.
type ErrorRecord struct {
	Message string `msgpack:"message"`
	File    string `msgpack:"file,omitempty"`
	Line    int    `msgpack:"line,omitempty"`
	Column  int    `msgpack:"column,omitempty"`
	Warning bool   `msgpack:"warning,omitempty"`
}

// Response is written by the child.
type Response struct {
	Output        string        `msgpack:"output"`
	Errors        []ErrorRecord `msgpack:"errors,omitempty"`
	FileExtension string        `msgpack:"file_extension,omitempty"`
	Encoding      string        `msgpack:"encoding,omitempty"`
	// ContractError is set when the requested type is missing or does not
	// implement Transformer.
	ContractError string `msgpack:"contract_error,omitempty"`
}

// Factory creates an instance of a generated type.
type Factory func() interface{}

// Serve reads a Request from stdin, runs it and writes the Response to the
// file named by ResponseEnv, or to stdout when it is unset. It never
// returns.
func Serve(types map[string]Factory) {
	os.Exit(serve(os.Stdin, os.Stdout, os.Getenv(ResponseEnv), types))
}

func serve(in io.Reader, out io.Writer, responsePath string, types map[string]Factory) int {
	var req Request
	code := ExitOK

	resp := &Response{}
	if err := msgpack.NewDecoder(in).Decode(&req); err != nil {
		resp.ContractError = fmt.Sprintf("cannot decode request: %v", err)
		code = ExitBadRequest
	} else {
		resp = Run(&req, types)
		if resp.ContractError != "" {
			code = ExitContractError
		}
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "t4go: cannot encode response: %v\n", err)
		return ExitWriteFailed
	}

	if responsePath == "" {
		_, err = io.Copy(out, bytes.NewReader(data))
	} else {
		err = os.WriteFile(responsePath, data, 0o600)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "t4go: cannot write response: %v\n", err)
		return ExitWriteFailed
	}
	return code
}

// Run executes a request in the current process. Panics raised by the
// transformation are reported as errors in the Response.
func Run(req *Request, types map[string]Factory) *Response {
	resp := &Response{}

	factory, ok := types[req.TypeName]
	if !ok || factory == nil {
		resp.ContractError = fmt.Sprintf("type '%s' was not found", req.TypeName)
		return resp
	}
	obj := factory()
	tr, ok := obj.(Transformer)
	if !ok {
		resp.ContractError = fmt.Sprintf("type '%s' does not implement Initialize, TransformText, Error and Errors", req.TypeName)
		return resp
	}

	SetAmbient(req.Ambient)
	defer SetAmbient(nil)

	var host *snapshotHost
	if req.Host != nil {
		host = &snapshotHost{snap: req.Host}
		if h, ok := obj.(HostAware); ok {
			h.SetHost(host)
		}
	}
	if s, ok := obj.(SessionAware); ok {
		session := req.Session
		if session == nil {
			session = make(map[string]interface{})
		}
		s.SetSession(session)
	}

	resp.Output = invoke(tr)

	for _, err := range tr.Errors() {
		resp.Errors = append(resp.Errors, recordOf(err))
	}
	if host != nil {
		resp.FileExtension = host.extension
		resp.Encoding = host.encoding
	}
	return resp
}

func invoke(tr Transformer) (output string) {
	stage := "initializing"
	defer func() {
		if r := recover(); r != nil {
			output = ""
			tr.Error(fmt.Sprintf("An exception was thrown while %s the template: %v", stage, r))
		}
	}()

	tr.Initialize()
	stage = "running"
	return tr.TransformText()
}

func recordOf(err error) ErrorRecord {
	rec := ErrorRecord{Message: err.Error()}
	if te, ok := err.(*TransformError); ok {
		rec.Message = te.Message
	}
	if w, ok := err.(interface{ IsWarning() bool }); ok {
		rec.Warning = w.IsWarning()
	}
	if l, ok := err.(interface{ Location() (string, int, int) }); ok {
		rec.File, rec.Line, rec.Column = l.Location()
	}
	return rec
}

// snapshotHost serves a HostSnapshot inside the child.
type snapshotHost struct {
	snap      *HostSnapshot
	extension string
	encoding  string
}

func (h *snapshotHost) TemplateFile() string { return h.snap.TemplateFile }

func (h *snapshotHost) ResolvePath(path string) string {
	if filepath.IsAbs(path) || h.snap.TemplateFile == "" {
		return path
	}
	return filepath.Join(filepath.Dir(h.snap.TemplateFile), path)
}

func (h *snapshotHost) ResolveParameterValue(_, processorName, parameterName string) (string, bool) {
	v, ok := h.snap.Parameters[ParameterKey(processorName, parameterName)]
	return v, ok
}

func (h *snapshotHost) LoadIncludeText(name string) (string, string, bool) {
	candidates := []string{h.ResolvePath(name)}
	if !filepath.IsAbs(name) {
		for _, dir := range h.snap.IncludePaths {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	for _, c := range candidates {
		data, err := os.ReadFile(c)
		if err == nil {
			return string(data), c, true
		}
	}
	return "", "", false
}

func (h *snapshotHost) SetFileExtension(extension string) { h.extension = extension }

func (h *snapshotHost) SetOutputEncoding(encoding string) { h.encoding = encoding }
