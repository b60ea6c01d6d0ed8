package ingress

import (
	"errors"

	"github.com/ethereum/go-ethereum/rpc"
)

// Error kinds not already owned by the bundle package (spec §7).
var (
	ErrSimulationInvalid       = errors.New("ingress: simulation rejected user operation")
	ErrSimulationTimeout       = errors.New("ingress: simulation timed out")
	ErrSimulationUnreachable   = errors.New("ingress: simulation collaborator unreachable")
	ErrBrokerUnreachable       = errors.New("ingress: event log broker unreachable")
	ErrUnknownUUID             = errors.New("ingress: unknown bundle uuid")
)

// rpcError implements go-ethereum/rpc's error interfaces so the JSON-RPC
// layer surfaces {code, message, data:{kind}} exactly per §7.
type rpcError struct {
	code int
	kind string
	err  error
}

func (e *rpcError) Error() string  { return e.err.Error() }
func (e *rpcError) ErrorCode() int { return e.code }
func (e *rpcError) ErrorData() interface{} {
	return map[string]string{"kind": e.kind}
}

var (
	_ rpc.Error     = (*rpcError)(nil)
	_ rpc.DataError = (*rpcError)(nil)
)

// clientError builds a 4xx-equivalent JSON-RPC error for validation and
// entry-point failures; the -32000..-32099 range is reserved for
// application errors per the JSON-RPC 2.0 spec.
func clientError(kind string, err error) *rpcError {
	return &rpcError{code: -32000, kind: kind, err: err}
}

// serverError builds a 5xx-equivalent JSON-RPC internal error for
// broker/simulation-unreachable failures, letting the client retry.
func serverError(kind string, err error) *rpcError {
	return &rpcError{code: -32603, kind: kind, err: err}
}
