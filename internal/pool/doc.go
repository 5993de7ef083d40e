// Package pool runs the worker process pool: N workers share one TCP port
// through SO_REUSEPORT, each hosting its own registry and RPC service, and a
// single pool-wide queue tells them when to stop.
//
// The owner reserves the port with a bound but non-listening socket, so the
// kernel only ever balances connections across the workers.
package pool
