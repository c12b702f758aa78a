package remote

import (
	"context"
	"net/http"
)

// BuildClient talks to the remote compile/flash service.
type BuildClient struct {
	c *Client
}

// NewBuildClient builds a client for the build service at base.
func NewBuildClient(base string) *BuildClient {
	return &BuildClient{c: NewClient(base, nil)}
}

// buildEnvelope is the build service's response shape.
type buildEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

// compileRequest is the compile/flash request body.
type compileRequest struct {
	Code  string `json:"code"`
	Board string `json:"board"`
	Port  string `json:"port,omitempty"`
}

// Compile submits code for compilation against the board profile. A
// collaborator-reported failure is returned as *RemoteError with the
// service's error detail; output carries the toolchain log either way.
func (b *BuildClient) Compile(ctx context.Context, code, board string) (string, error) {
	var env buildEnvelope
	err := b.c.doJSON(ctx, "compile", http.MethodPost, "/compile", compileRequest{Code: code, Board: board}, &env)
	if err != nil {
		return "", err
	}
	if !env.Success {
		return env.Output, &RemoteError{Op: "compile", Detail: firstNonEmpty(env.Error, "compilation failed")}
	}
	return firstNonEmpty(env.Output, env.Message), nil
}

// Flash compiles and uploads code to the device on port.
func (b *BuildClient) Flash(ctx context.Context, code, board, port string) (string, error) {
	var env buildEnvelope
	err := b.c.doJSON(ctx, "upload", http.MethodPost, "/upload", compileRequest{Code: code, Board: board, Port: port}, &env)
	if err != nil {
		return "", err
	}
	if !env.Success {
		return env.Output, &RemoteError{Op: "upload", Detail: firstNonEmpty(env.Error, "upload failed")}
	}
	return firstNonEmpty(env.Output, env.Message), nil
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
