// Package process runs a single supervised subprocess.
//
// Start spawns the command and returns a Process handle:
//   - Done is closed exactly once when the subprocess has exited
//   - ExitCode reports the exit status after Done (128+n when killed by signal n)
//   - Terminate sends SIGINT, then SIGKILL to the process group after a timeout
//   - An optional Stdin reader is forwarded into the subprocess's standard input
//   - Output is either attached to the parent's stdout/stderr or parsed into logs
//
// A Process is never restarted. Once it exits the handle is spent.
package process
